// Package narration turns a chapter reference into a published audio narration: it builds
// the narration text, synthesizes it chunk by chunk on a bounded pool, merges the chunks and
// uploads the result to the content cache.
package narration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/book-expert/scripture-service/internal/audio"
	"github.com/book-expert/scripture-service/internal/cache"
	"github.com/book-expert/scripture-service/internal/catalog"
	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/scripture"
	"github.com/book-expert/scripture-service/internal/text"
)

// DefaultChunkLimit is the speech capability's per-request character budget.
const DefaultChunkLimit = 3000

// DefaultRunTimeout bounds one pipeline run shared by every caller waiting on the chapter.
const DefaultRunTimeout = 10 * time.Minute

// ErrNothingToNarrate is returned when a chapter carries no text to read aloud.
var ErrNothingToNarrate = errors.New("chapter has no narratable text")

// TextSource supplies structured chapter text.
type TextSource interface {
	GetChapterText(ctx context.Context, ref scripture.ChapterReference) (*scripture.StructuredChapter, error)
}

// Artifact is a stored narration.
type Artifact struct {
	Reference  scripture.ChapterReference `json:"reference"`
	StorageKey string                     `json:"storageKey"`
	MimeType   string                     `json:"mimeType"`
	URL        string                     `json:"url"`
}

// Options tunes the orchestrator.
type Options struct {
	ChunkLimit  int
	Format      audio.Format
	StagingRoot string
	RunTimeout  time.Duration
}

// Orchestrator runs the narration pipeline.
type Orchestrator struct {
	catalog      *catalog.Catalog
	texts        TextSource
	synthesizer  core.Synthesizer
	concatenator core.Concatenator
	cache        *cache.ContentCache
	pool         *ants.Pool
	preprocessor *text.Preprocessor
	log          *logger.Logger
	opts         Options
	flight       singleflight.Group
}

// New creates an orchestrator. The pool is shared with other requests and bounds the number
// of synthesis calls in flight across the process.
func New(
	cat *catalog.Catalog,
	texts TextSource,
	synthesizer core.Synthesizer,
	concatenator core.Concatenator,
	contentCache *cache.ContentCache,
	pool *ants.Pool,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = DefaultChunkLimit
	}

	if opts.Format == "" {
		opts.Format = audio.FormatMP3
	}

	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}

	return &Orchestrator{
		catalog:      cat,
		texts:        texts,
		synthesizer:  synthesizer,
		concatenator: concatenator,
		cache:        contentCache,
		pool:         pool,
		preprocessor: text.NewPreprocessor(),
		log:          log,
		opts:         opts,
	}
}

// Synthesize returns the public URL of the chapter's narration, producing it on a cache miss.
func (o *Orchestrator) Synthesize(ctx context.Context, ref scripture.ChapterReference) (string, error) {
	artifact, err := o.Narrate(ctx, ref)
	if err != nil {
		return "", err
	}

	return artifact.URL, nil
}

// Narrate returns the stored narration artifact of a chapter. Concurrent calls for the same
// chapter share one pipeline run, which is detached from any single caller's cancellation and
// bounded by the run timeout instead.
func (o *Orchestrator) Narrate(ctx context.Context, ref scripture.ChapterReference) (*Artifact, error) {
	ref, _, err := o.catalog.Resolve(ref.Normalize())
	if err != nil {
		return nil, err
	}

	key := cache.AudioKey(ref.Version, ref.Book, ref.Chapter)

	results := o.flight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.RunTimeout)
		defer cancel()

		return o.narrate(runCtx, ref, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for narration of %s: %w", ref, ctx.Err())
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}

		artifact, _ := result.Val.(*Artifact)

		return artifact, nil
	}
}

func (o *Orchestrator) narrate(ctx context.Context, ref scripture.ChapterReference, key string) (*Artifact, error) {
	exists, err := o.cache.Exists(ctx, key)
	if err != nil {
		o.log.Warn("Cache lookup for %s failed, synthesizing: %v", key, err)
	}

	if exists {
		return o.artifact(ref, key, o.cache.URL(key)), nil
	}

	voice, err := o.catalog.Voice(ref.Language)
	if err != nil {
		return nil, err
	}

	chapter, err := o.texts.GetChapterText(ctx, ref)
	if err != nil {
		return nil, err
	}

	chunks := text.Split(o.preprocessor.PreprocessText(chapter.NarrationText()), o.opts.ChunkLimit)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %w for %s", core.ErrSynthesis, ErrNothingToNarrate, ref)
	}

	staging, err := audio.NewStaging(o.opts.StagingRoot, o.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}
	defer staging.Release()

	o.log.Info("Narrating %s in %d chunks with voice %s.", ref, len(chunks), voice.Name)

	paths, err := o.synthesizeChunks(ctx, staging, chunks, voice)
	if err != nil {
		return nil, err
	}

	final := paths[0]

	if len(paths) > 1 {
		final, err = o.concatenator.Concatenate(ctx, paths, staging.Path("chapter"+o.opts.Format.Extension()))
		if err != nil {
			return nil, fmt.Errorf("failed to merge narration of %s: %w", ref, err)
		}
	}

	url, err := o.cache.Put(ctx, key, final, o.opts.Format.ContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to publish narration of %s: %w", ref, err)
	}

	o.log.Info("Published narration of %s at %s.", ref, url)

	return o.artifact(ref, key, url), nil
}

// synthesizeChunks fans the chunks out over the pool and stages each payload. The first
// failure cancels the remaining calls; the returned paths are in chunk order.
func (o *Orchestrator) synthesizeChunks(
	ctx context.Context,
	staging *audio.Staging,
	chunks []string,
	voice core.Voice,
) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		waitGroup sync.WaitGroup
		failOnce  sync.Once
		firstErr  error
	)

	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err

			cancel()
		})
	}

	paths := make([]string, len(chunks))

	for index, chunk := range chunks {
		waitGroup.Add(1)

		submitErr := o.pool.Submit(func() {
			defer waitGroup.Done()

			path, err := o.synthesizeChunk(ctx, staging, index, chunk, voice)
			if err != nil {
				fail(err)

				return
			}

			paths[index] = path
		})
		if submitErr != nil {
			waitGroup.Done()
			fail(fmt.Errorf("%w: failed to schedule chunk %d: %w", core.ErrSynthesis, index, submitErr))

			break
		}
	}

	waitGroup.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return paths, nil
}

func (o *Orchestrator) synthesizeChunk(
	ctx context.Context,
	staging *audio.Staging,
	index int,
	chunk string,
	voice core.Voice,
) (string, error) {
	err := ctx.Err()
	if err != nil {
		return "", fmt.Errorf("%w: chunk %d cancelled: %w", core.ErrSynthesis, index, err)
	}

	encoded, err := o.synthesizer.Synthesize(ctx, core.SynthesisRequest{
		Text:   chunk,
		Format: string(o.opts.Format),
		Voice:  voice,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chunk %d: %w", core.ErrSynthesis, index, err)
	}

	return staging.WriteChunk(index, encoded, o.opts.Format)
}

func (o *Orchestrator) artifact(ref scripture.ChapterReference, key, url string) *Artifact {
	return &Artifact{
		Reference:  ref,
		StorageKey: key,
		MimeType:   o.opts.Format.ContentType(),
		URL:        url,
	}
}
