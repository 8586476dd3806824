// Package markup turns the upstream chapter markup into a verse-addressable scripture.Document.
//
// The markup is a tree of classed elements: a version container holding a book container
// holding a chapter container. The chapter's direct children are section headings,
// cross-reference headings and paragraph-like elements whose verse spans carry a data-usfm
// locator, an optional number label, content spans and notes.
package markup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/scripture"
	"github.com/book-expert/scripture-service/internal/text"
)

const (
	attrClass = "class"
	attrUSFM  = "data-usfm"
	classNote = "note"
)

type role int

const (
	roleIgnored role = iota
	roleHeading
	roleReference
	roleBlock
)

var headingClasses = map[string]struct{}{
	"s": {}, "s1": {}, "s2": {}, "s3": {}, "ms": {}, "ms1": {}, "mr": {}, "d": {},
}

var blockClasses = map[string]scripture.BlockKind{
	"p":   scripture.BlockParagraph,
	"m":   scripture.BlockParagraph,
	"pi":  scripture.BlockParagraph,
	"pi1": scripture.BlockParagraph,
	"nb":  scripture.BlockParagraph,
	"q":   scripture.BlockQuoteLine,
	"q1":  scripture.BlockQuoteLine,
	"q2":  scripture.BlockQuoteLine,
	"q3":  scripture.BlockQuoteLine,
	"qc":  scripture.BlockQuoteLine,
}

var (
	chapterExpr = mustCompileClass(`//div[%s]`, "chapter")
	verseExpr   = mustCompileClass(`.//span[%s]`, "verse")
	labelExpr   = mustCompileClass(`./span[%s]`, "label")
	bodyExpr    = mustCompileClass(`./span[%s]`, "body")
	noteExpr    = mustCompileClass(`.//span[%s]`, classNote)
	contentExpr = xpath.MustCompile(
		`.//span[` + hasClass("content") + `][not(ancestor::span[` + hasClass(classNote) + `])]`,
	)
	headingPartExpr = xpath.MustCompile(
		`.//span[` + hasClass("heading") + ` or ` + hasClass("label") + `]`,
	)
)

func hasClass(class string) string {
	return fmt.Sprintf(`contains(concat(' ', normalize-space(@class), ' '), ' %s ')`, class)
}

func mustCompileClass(pattern, class string) *xpath.Expr {
	return xpath.MustCompile(fmt.Sprintf(pattern, hasClass(class)))
}

// Parse builds a Document from raw chapter markup. It never fails on malformed input: the
// result is simply smaller. When the chapter container is missing entirely an empty
// Document is returned together with an error wrapping core.ErrParse.
func Parse(raw string) (*scripture.Document, error) {
	builder := newDocumentBuilder()

	root, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return builder.document(), fmt.Errorf("%w: %w", core.ErrParse, err)
	}

	chapter := htmlquery.QuerySelector(root, chapterExpr)
	if chapter == nil {
		return builder.document(), fmt.Errorf("%w: chapter container not found", core.ErrParse)
	}

	for child := chapter.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}

		elementRole, kind := classify(child)

		switch elementRole {
		case roleHeading:
			builder.addHeading(scripture.NodeHeading, headingText(child))
		case roleReference:
			builder.addHeading(scripture.NodeReference, headingText(child))
		case roleBlock:
			builder.addBlock(kind, extractVerses(child))
		case roleIgnored:
		}
	}

	return builder.document(), nil
}

func classify(node *html.Node) (role, scripture.BlockKind) {
	for _, class := range classList(node) {
		if class == "r" {
			return roleReference, ""
		}

		if _, ok := headingClasses[class]; ok {
			return roleHeading, ""
		}

		if kind, ok := blockClasses[class]; ok {
			return roleBlock, kind
		}
	}

	return roleIgnored, ""
}

func classList(node *html.Node) []string {
	return strings.Fields(htmlquery.SelectAttr(node, attrClass))
}

func headingText(node *html.Node) string {
	parts := htmlquery.QuerySelectorAll(node, headingPartExpr)
	if len(parts) == 0 {
		return text.NormalizeWhitespace(htmlquery.InnerText(node))
	}

	var builder strings.Builder
	for _, part := range parts {
		builder.WriteString(htmlquery.InnerText(part))
	}

	return text.NormalizeWhitespace(builder.String())
}

func extractVerses(block *html.Node) []scripture.Verse {
	spans := htmlquery.QuerySelectorAll(block, verseExpr)
	verses := make([]scripture.Verse, 0, len(spans))

	for _, span := range spans {
		verses = append(verses, extractVerse(span))
	}

	return verses
}

func extractVerse(span *html.Node) scripture.Verse {
	verse := scripture.Verse{
		Identifier: strings.TrimSpace(htmlquery.SelectAttr(span, attrUSFM)),
		Text:       verseText(span),
		Notes:      extractNotes(span),
	}

	label := htmlquery.QuerySelector(span, labelExpr)
	if label != nil {
		number, err := strconv.Atoi(strings.TrimSpace(htmlquery.InnerText(label)))
		if err == nil {
			verse.Number = &number
		}
	}

	return verse
}

func verseText(span *html.Node) string {
	contents := htmlquery.QuerySelectorAll(span, contentExpr)
	if len(contents) == 0 {
		return text.NormalizeWhitespace(ownText(span))
	}

	var builder strings.Builder
	for _, content := range contents {
		builder.WriteString(htmlquery.InnerText(content))
	}

	return text.NormalizeWhitespace(builder.String())
}

// ownText returns the text of node's direct text children, ignoring nested elements.
func ownText(node *html.Node) string {
	var builder strings.Builder

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			builder.WriteString(child.Data)
		}
	}

	return builder.String()
}

func extractNotes(span *html.Node) []scripture.Note {
	noteNodes := htmlquery.QuerySelectorAll(span, noteExpr)
	if len(noteNodes) == 0 {
		return nil
	}

	notes := make([]scripture.Note, 0, len(noteNodes))

	for _, noteNode := range noteNodes {
		note := scripture.Note{Kind: noteKind(noteNode)}

		label := htmlquery.QuerySelector(noteNode, labelExpr)
		if label != nil {
			note.Label = text.NormalizeWhitespace(htmlquery.InnerText(label))
		}

		body := htmlquery.QuerySelector(noteNode, bodyExpr)
		if body != nil {
			note.Body = text.NormalizeWhitespace(htmlquery.InnerText(body))
		}

		notes = append(notes, note)
	}

	return notes
}

func noteKind(node *html.Node) string {
	kinds := make([]string, 0, 1)

	for _, class := range classList(node) {
		if class != classNote {
			kinds = append(kinds, class)
		}
	}

	return strings.Join(kinds, " ")
}
