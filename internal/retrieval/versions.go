package retrieval

import (
	"context"

	"github.com/book-expert/scripture-service/internal/cache"
	"github.com/book-expert/scripture-service/internal/catalog"
	"github.com/book-expert/scripture-service/internal/upstream"
)

// VersionListing is the cached list of versions published in one language.
type VersionListing struct {
	Language string            `json:"language"`
	Versions []catalog.Version `json:"versions"`
}

// LanguageSummary is one entry of the language index.
type LanguageSummary struct {
	Code     string `json:"code"`
	ISO6393  string `json:"iso6393"`
	Name     string `json:"name"`
	Narrated bool   `json:"narrated"`
}

// ListVersions returns the versions configured for a language.
func (s *Service) ListVersions(ctx context.Context, language string) (*VersionListing, error) {
	lang, err := s.catalog.Language(language)
	if err != nil {
		return nil, err
	}

	key := cache.VersionsByLanguageKey(lang.ISO6393)

	var listing VersionListing
	if s.readCache(ctx, key, &listing) {
		return &listing, nil
	}

	versions, err := s.catalog.VersionsFor(lang.Code)
	if err != nil {
		return nil, err
	}

	listing = VersionListing{Language: lang.ISO6393, Versions: versions}
	s.writeCache(ctx, key, listing)

	return &listing, nil
}

// GetVersion returns the upstream metadata of a version, including its book list.
func (s *Service) GetVersion(ctx context.Context, abbreviation string) (*upstream.VersionInfo, error) {
	version, err := s.catalog.Version(abbreviation)
	if err != nil {
		return nil, err
	}

	key := cache.VersionKey(version.Abbreviation)

	var info upstream.VersionInfo
	if s.readCache(ctx, key, &info) {
		return &info, nil
	}

	fetched, err := s.upstream.FetchVersion(ctx, version.BibleID)
	if err != nil {
		return nil, asUnavailable(err)
	}

	s.writeCache(ctx, key, fetched)

	return fetched, nil
}

// ListLanguages returns the language index.
func (s *Service) ListLanguages(ctx context.Context) ([]LanguageSummary, error) {
	key := cache.VersionsIndexKey()

	var summaries []LanguageSummary
	if s.readCache(ctx, key, &summaries) {
		return summaries, nil
	}

	languages := s.catalog.Languages()
	summaries = make([]LanguageSummary, 0, len(languages))

	for _, language := range languages {
		summaries = append(summaries, LanguageSummary{
			Code:     language.Code,
			ISO6393:  language.ISO6393,
			Name:     language.Name,
			Narrated: language.Narrated(),
		})
	}

	s.writeCache(ctx, key, summaries)

	return summaries, nil
}
