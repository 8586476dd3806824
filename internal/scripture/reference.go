package scripture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/book-expert/scripture-service/internal/core"
)

// ChapterReference is the natural key of a chapter for both text and audio caching.
type ChapterReference struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Book     string `json:"book"`
	Chapter  string `json:"chapter"`
}

// Normalize returns the canonical form of the reference so that distinct literal inputs
// addressing the same chapter share one cache key.
func (r ChapterReference) Normalize() ChapterReference {
	chapter := strings.TrimSpace(r.Chapter)
	if number, err := strconv.Atoi(chapter); err == nil {
		chapter = strconv.Itoa(number)
	}

	return ChapterReference{
		Language: strings.ToLower(strings.TrimSpace(r.Language)),
		Version:  strings.TrimSpace(r.Version),
		Book:     strings.ToUpper(strings.TrimSpace(r.Book)),
		Chapter:  chapter,
	}
}

// Validate checks that every field is present and the chapter is a positive number.
func (r ChapterReference) Validate() error {
	switch {
	case r.Language == "":
		return fmt.Errorf("%w: language is required", core.ErrClient)
	case r.Version == "":
		return fmt.Errorf("%w: version is required", core.ErrClient)
	case r.Book == "":
		return fmt.Errorf("%w: book is required", core.ErrClient)
	}

	number, err := strconv.Atoi(r.Chapter)
	if err != nil || number < 1 {
		return fmt.Errorf("%w: chapter must be a positive number, got %q", core.ErrClient, r.Chapter)
	}

	return nil
}

// USFM returns the chapter locator, e.g. "GEN.1".
func (r ChapterReference) USFM() string {
	return r.Book + "." + r.Chapter
}

// String returns the textual form accepted by ParseReference.
func (r ChapterReference) String() string {
	return r.Language + "/" + r.Version + "/" + r.USFM()
}

// referenceGrammar accepts "VERSION/BOOK.CHAPTER" and "lang/VERSION/BOOK.CHAPTER".
type referenceGrammar struct {
	Path    []string `parser:"@Word ( '/' @Word )*"`
	Chapter string   `parser:"'.' @Word"`
}

var referenceLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `[A-Za-z0-9]+`},
	{Name: "Punct", Pattern: `[./]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var referenceParser = participle.MustBuild[referenceGrammar](
	participle.Lexer(referenceLexer),
	participle.Elide("Whitespace"),
)

// ParseReference parses "es/RVR1960/GEN.1" or "RVR1960/GEN.1". When the language segment is
// omitted, defaultLanguage is used. The result is normalized.
func ParseReference(input, defaultLanguage string) (ChapterReference, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ChapterReference{}, fmt.Errorf("%w: empty reference", core.ErrClient)
	}

	parsed, err := referenceParser.ParseString("", input)
	if err != nil {
		return ChapterReference{}, fmt.Errorf("%w: invalid reference %q: %w", core.ErrClient, input, err)
	}

	var ref ChapterReference

	switch len(parsed.Path) {
	case 2:
		ref = ChapterReference{Language: defaultLanguage, Version: parsed.Path[0], Book: parsed.Path[1]}
	case 3:
		ref = ChapterReference{Language: parsed.Path[0], Version: parsed.Path[1], Book: parsed.Path[2]}
	default:
		return ChapterReference{}, fmt.Errorf("%w: invalid reference %q", core.ErrClient, input)
	}

	ref.Chapter = parsed.Chapter
	ref = ref.Normalize()

	validateErr := ref.Validate()
	if validateErr != nil {
		return ChapterReference{}, validateErr
	}

	return ref, nil
}
