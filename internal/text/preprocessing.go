// Package text prepares chapter text for narration: normalization and chunking to the speech
// API's character budget.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for narration preprocessing.
const (
	bracketMarkerRegexPattern = `\[[^\]]*\]`
	superscriptRegexPattern   = `[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
	pilcrow      = "¶"
)

// Preprocessor normalizes text before it is handed to the speech capability.
type Preprocessor struct {
	bracketMarkerPattern *regexp.Regexp
	superscriptPattern   *regexp.Regexp
	punctuationReplacer  *strings.Replacer
}

// NewPreprocessor creates a preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		bracketMarkerPattern: regexp.MustCompile(bracketMarkerRegexPattern),
		superscriptPattern:   regexp.MustCompile(superscriptRegexPattern),
		punctuationReplacer: strings.NewReplacer(
			emDash, ", ",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			pilcrow, "",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// PreprocessText strips editorial markers and normalizes punctuation and whitespace.
func (p *Preprocessor) PreprocessText(text string) string {
	if text == "" {
		return text
	}

	cleanedText := p.bracketMarkerPattern.ReplaceAllString(text, "")
	cleanedText = p.superscriptPattern.ReplaceAllString(cleanedText, "")
	cleanedText = p.punctuationReplacer.Replace(cleanedText)

	return p.ensureProperSentenceEnding(NormalizeWhitespace(cleanedText))
}

// NormalizeWhitespace collapses every whitespace run into a single space and trims the ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (p *Preprocessor) ensureProperSentenceEnding(text string) string {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(trimmedText)
	if !unicode.IsPunct(lastChar) {
		return trimmedText + "."
	}

	return trimmedText
}
