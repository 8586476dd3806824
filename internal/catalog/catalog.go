// Package catalog holds the fixed lookup tables the pipeline consults before any upstream
// contact: version abbreviations to upstream bible ids, 2-letter to 3-letter language codes,
// and the narration voice configured for each language.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/scripture"
)

const (
	directionLTR = "ltr"
	directionRTL = "rtl"
)

var (
	// ErrInvalidTables is returned by New when the configured tables are inconsistent.
	ErrInvalidTables = errors.New("invalid catalog tables")
)

// Version describes one published version the upstream serves.
type Version struct {
	Abbreviation  string `toml:"abbreviation"   json:"abbreviation"`
	BibleID       int    `toml:"bible_id"       json:"bibleId"`
	Language      string `toml:"language"       json:"language"`
	Title         string `toml:"title"          json:"title"`
	TextDirection string `toml:"text_direction" json:"textDirection"`
}

// Language maps a 2-letter code to its 3-letter form and, when narration is supported,
// to the voice used for it.
type Language struct {
	Code    string     `toml:"code"      json:"code"`
	ISO6393 string     `toml:"iso_639_3" json:"iso6393"`
	Name    string     `toml:"name"      json:"name"`
	Voice   core.Voice `toml:"voice"     json:"voice"`
}

// Narrated reports whether a voice is configured for the language.
func (l Language) Narrated() bool {
	return l.Voice.Name != ""
}

// Tables is the [catalog] configuration section.
type Tables struct {
	Versions  []Version  `toml:"versions"`
	Languages []Language `toml:"languages"`
}

// Catalog answers lookups against the configured tables. It is immutable after New.
type Catalog struct {
	versions  map[string]Version
	languages map[string]Language
	ordered   []Language
}

// New indexes the tables, rejecting duplicates and versions whose language is not configured.
func New(tables Tables) (*Catalog, error) {
	catalog := &Catalog{
		versions:  make(map[string]Version, len(tables.Versions)),
		languages: make(map[string]Language, len(tables.Languages)*2),
		ordered:   make([]Language, 0, len(tables.Languages)),
	}

	for _, language := range tables.Languages {
		language.Code = strings.ToLower(strings.TrimSpace(language.Code))
		language.ISO6393 = strings.ToLower(strings.TrimSpace(language.ISO6393))

		if len(language.Code) != 2 || len(language.ISO6393) != 3 {
			return nil, fmt.Errorf("%w: language %q must have a 2-letter code and a 3-letter code",
				ErrInvalidTables, language.Code)
		}

		if _, exists := catalog.languages[language.Code]; exists {
			return nil, fmt.Errorf("%w: duplicate language %q", ErrInvalidTables, language.Code)
		}

		catalog.languages[language.Code] = language
		catalog.languages[language.ISO6393] = language
		catalog.ordered = append(catalog.ordered, language)
	}

	for _, version := range tables.Versions {
		version.Abbreviation = strings.TrimSpace(version.Abbreviation)
		version.Language = strings.ToLower(strings.TrimSpace(version.Language))

		if version.Abbreviation == "" || version.BibleID <= 0 {
			return nil, fmt.Errorf("%w: version %q needs an abbreviation and a positive bible id",
				ErrInvalidTables, version.Abbreviation)
		}

		key := strings.ToUpper(version.Abbreviation)
		if _, exists := catalog.versions[key]; exists {
			return nil, fmt.Errorf("%w: duplicate version %q", ErrInvalidTables, version.Abbreviation)
		}

		if _, known := catalog.languages[version.Language]; !known {
			return nil, fmt.Errorf("%w: version %q uses unconfigured language %q",
				ErrInvalidTables, version.Abbreviation, version.Language)
		}

		switch version.TextDirection {
		case "":
			version.TextDirection = directionLTR
		case directionLTR, directionRTL:
		default:
			return nil, fmt.Errorf("%w: version %q has text direction %q",
				ErrInvalidTables, version.Abbreviation, version.TextDirection)
		}

		catalog.versions[key] = version
	}

	sort.Slice(catalog.ordered, func(i, j int) bool {
		return catalog.ordered[i].Code < catalog.ordered[j].Code
	})

	return catalog, nil
}

// Version looks up a version by abbreviation, ignoring case.
func (c *Catalog) Version(abbreviation string) (Version, error) {
	version, ok := c.versions[strings.ToUpper(strings.TrimSpace(abbreviation))]
	if !ok {
		return Version{}, fmt.Errorf("%w: unknown version %q", core.ErrClient, abbreviation)
	}

	return version, nil
}

// Language looks up a language by its 2-letter or 3-letter code.
func (c *Catalog) Language(code string) (Language, error) {
	language, ok := c.languages[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Language{}, fmt.Errorf("%w: unsupported language %q", core.ErrClient, code)
	}

	return language, nil
}

// Voice returns the narration voice for a language.
func (c *Catalog) Voice(code string) (core.Voice, error) {
	language, err := c.Language(code)
	if err != nil {
		return core.Voice{}, err
	}

	if !language.Narrated() {
		return core.Voice{}, fmt.Errorf("%w: no narration voice for language %q", core.ErrClient, code)
	}

	return language.Voice, nil
}

// Languages returns every configured language ordered by code.
func (c *Catalog) Languages() []Language {
	languages := make([]Language, len(c.ordered))
	copy(languages, c.ordered)

	return languages
}

// VersionsFor returns the versions published in a language, ordered by abbreviation.
func (c *Catalog) VersionsFor(code string) ([]Version, error) {
	language, err := c.Language(code)
	if err != nil {
		return nil, err
	}

	versions := make([]Version, 0)

	for _, version := range c.versions {
		if version.Language == language.Code {
			versions = append(versions, version)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Abbreviation < versions[j].Abbreviation
	})

	return versions, nil
}

// Resolve validates a normalized reference against the tables and returns it in canonical form,
// with the configured version abbreviation and the 2-letter language code, together with the
// version it names. Every failure wraps core.ErrClient.
func (c *Catalog) Resolve(ref scripture.ChapterReference) (scripture.ChapterReference, Version, error) {
	err := ref.Validate()
	if err != nil {
		return scripture.ChapterReference{}, Version{}, err
	}

	language, err := c.Language(ref.Language)
	if err != nil {
		return scripture.ChapterReference{}, Version{}, err
	}

	if !KnownBook(ref.Book) {
		return scripture.ChapterReference{}, Version{}, fmt.Errorf("%w: unknown book %q", core.ErrClient, ref.Book)
	}

	version, err := c.Version(ref.Version)
	if err != nil {
		return scripture.ChapterReference{}, Version{}, err
	}

	ref.Language = language.Code
	ref.Version = version.Abbreviation

	return ref, version, nil
}
