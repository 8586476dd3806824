package scripture

import "strings"

// EntryType identifies the kind of a flattened chapter entry.
type EntryType string

// Entry types.
const (
	EntryHeading   EntryType = "heading"
	EntryReference EntryType = "reference"
	EntryVerse     EntryType = "verse"
)

// Entry is one item of a StructuredChapter's flattened content.
type Entry struct {
	Type   EntryType `json:"type"`
	Text   string    `json:"text"`
	Number *int      `json:"number,omitempty"`
	USFM   string    `json:"usfm,omitempty"`
	Notes  []Note    `json:"notes,omitempty"`
}

// StructuredChapter is the cached projection of a parsed chapter used for display and narration.
type StructuredChapter struct {
	Title         string  `json:"title"`
	USFM          string  `json:"usfm"`
	Content       []Entry `json:"content"`
	Language      string  `json:"language"`
	TextDirection string  `json:"textDirection"`
}

// Flatten projects a document into the flattened content list: headings and references pass
// through, verses are lifted out of their blocks in order.
func Flatten(doc *Document) []Entry {
	entries := make([]Entry, 0)

	if doc == nil {
		return entries
	}

	for _, node := range doc.Nodes {
		switch node.Kind {
		case NodeHeading:
			entries = append(entries, Entry{Type: EntryHeading, Text: node.Text})
		case NodeReference:
			entries = append(entries, Entry{Type: EntryReference, Text: node.Text})
		case NodeBlock:
			for _, verse := range node.Verses {
				entries = append(entries, Entry{
					Type:   EntryVerse,
					Text:   verse.Text,
					Number: verse.Number,
					USFM:   verse.Identifier,
					Notes:  verse.Notes,
				})
			}
		}
	}

	return entries
}

// Narratable returns the audio-facing view of the content: reference entries are dropped.
func (c *StructuredChapter) Narratable() []Entry {
	entries := make([]Entry, 0, len(c.Content))

	for _, entry := range c.Content {
		if entry.Type == EntryReference {
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

// NarrationText builds the flat text read aloud for a chapter: the title, the first heading as an
// introductory sentence, then every remaining text-bearing entry in order.
func (c *StructuredChapter) NarrationText() string {
	entries := c.Narratable()
	parts := make([]string, 0, len(entries)+1)
	parts = appendSentence(parts, c.Title)

	intro := -1

	for index, entry := range entries {
		if entry.Type == EntryHeading {
			intro = index
			parts = appendSentence(parts, entry.Text)

			break
		}
	}

	for index, entry := range entries {
		if index == intro {
			continue
		}

		text := strings.TrimSpace(entry.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

func appendSentence(parts []string, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return parts
	}

	if !strings.ContainsAny(text[len(text)-1:], ".!?:;") {
		text += "."
	}

	return append(parts, text)
}
