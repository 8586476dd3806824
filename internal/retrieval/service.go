// Package retrieval serves structured chapter text, consulting the content cache first and
// falling back to the upstream with the token refresh protocol.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"golang.org/x/sync/singleflight"

	"github.com/book-expert/scripture-service/internal/cache"
	"github.com/book-expert/scripture-service/internal/catalog"
	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/markup"
	"github.com/book-expert/scripture-service/internal/scripture"
	"github.com/book-expert/scripture-service/internal/upstream"
)

// TokenSource hands out the upstream address token.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
	Invalidate()
}

// Upstream fetches raw records from the content source.
type Upstream interface {
	FetchChapter(ctx context.Context, req upstream.ChapterRequest) (*upstream.Chapter, error)
	FetchVersion(ctx context.Context, bibleID int) (*upstream.VersionInfo, error)
}

// Service implements chapter text retrieval and the version listings.
type Service struct {
	catalog  *catalog.Catalog
	tokens   TokenSource
	upstream Upstream
	cache    *cache.ContentCache
	log      *logger.Logger
	flight   singleflight.Group
}

// NewService wires a retrieval service.
func NewService(
	cat *catalog.Catalog,
	tokens TokenSource,
	source Upstream,
	contentCache *cache.ContentCache,
	log *logger.Logger,
) *Service {
	return &Service{
		catalog:  cat,
		tokens:   tokens,
		upstream: source,
		cache:    contentCache,
		log:      log,
	}
}

// GetChapterText returns the structured text of a chapter. The reference is validated against
// the catalog before any cache or upstream access; concurrent calls for the same chapter share
// one load.
func (s *Service) GetChapterText(ctx context.Context, ref scripture.ChapterReference) (*scripture.StructuredChapter, error) {
	ref, version, err := s.catalog.Resolve(ref.Normalize())
	if err != nil {
		return nil, err
	}

	key := cache.TextKey(ref.Version, ref.Book, ref.Chapter)

	// The shared load outlives any single caller; each upstream call carries its own timeout.
	results := s.flight.DoChan(key, func() (any, error) {
		return s.loadChapter(context.WithoutCancel(ctx), ref, version, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", ref, ctx.Err())
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}

		chapter, _ := result.Val.(*scripture.StructuredChapter)

		return chapter, nil
	}
}

func (s *Service) loadChapter(
	ctx context.Context,
	ref scripture.ChapterReference,
	version catalog.Version,
	key string,
) (*scripture.StructuredChapter, error) {
	var cached scripture.StructuredChapter
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	record, err := s.fetchChapter(ctx, ref, version)
	if errors.Is(err, core.ErrUpstreamStaleToken) {
		s.log.Warn("Stale upstream token for %s, refreshing and retrying once.", ref)
		s.tokens.Invalidate()

		record, err = s.fetchChapter(ctx, ref, version)
		if errors.Is(err, core.ErrUpstreamStaleToken) {
			err = fmt.Errorf("%w: retry after token refresh failed: %w", core.ErrUpstreamUnavailable, err)
		}
	}

	if err != nil {
		return nil, err
	}

	doc, err := markup.Parse(record.Markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ref, err)
	}

	chapter := project(ref, version, record, doc)

	s.writeCache(ctx, key, chapter)
	s.log.Info("Retrieved %s with %d entries.", ref, len(chapter.Content))

	return chapter, nil
}

func (s *Service) fetchChapter(
	ctx context.Context,
	ref scripture.ChapterReference,
	version catalog.Version,
) (*upstream.Chapter, error) {
	token, err := s.tokens.Resolve(ctx)
	if err != nil {
		return nil, asUnavailable(err)
	}

	record, err := s.upstream.FetchChapter(ctx, upstream.ChapterRequest{
		Token:    token,
		Language: ref.Language,
		BibleID:  version.BibleID,
		Book:     ref.Book,
		Chapter:  ref.Chapter,
		Version:  ref.Version,
	})
	if err != nil {
		if errors.Is(err, core.ErrUpstreamStaleToken) {
			return nil, err
		}

		return nil, asUnavailable(err)
	}

	return record, nil
}

func project(
	ref scripture.ChapterReference,
	version catalog.Version,
	record *upstream.Chapter,
	doc *scripture.Document,
) *scripture.StructuredChapter {
	title := record.Title
	if title == "" {
		title = ref.Book + " " + ref.Chapter
	}

	return &scripture.StructuredChapter{
		Title:         title,
		USFM:          ref.USFM(),
		Content:       scripture.Flatten(doc),
		Language:      ref.Language,
		TextDirection: version.TextDirection,
	}
}

// readCache decodes key into target. Misses and read failures both report false; failures are
// logged and otherwise ignored.
func (s *Service) readCache(ctx context.Context, key string, target any) bool {
	exists, err := s.cache.Exists(ctx, key)
	if err != nil {
		s.log.Warn("Cache lookup for %s failed, continuing uncached: %v", key, err)

		return false
	}

	if !exists {
		return false
	}

	err = s.cache.GetJSON(ctx, key, target)
	if err != nil {
		s.log.Warn("Cache read for %s failed, continuing uncached: %v", key, err)

		return false
	}

	return true
}

// writeCache stores value under key. A failed write never fails the request.
func (s *Service) writeCache(ctx context.Context, key string, value any) {
	err := s.cache.PutJSON(ctx, key, value)
	if err != nil {
		s.log.Warn("Cache write for %s failed: %v", key, err)
	}
}

func asUnavailable(err error) error {
	if errors.Is(err, core.ErrUpstreamUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
}
