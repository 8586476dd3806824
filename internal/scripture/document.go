// Package scripture holds the domain model for parsed chapters and chapter references.
package scripture

// NodeKind discriminates the variants of a document node.
type NodeKind string

// Document node variants.
const (
	NodeHeading   NodeKind = "heading"
	NodeReference NodeKind = "reference"
	NodeBlock     NodeKind = "block"
)

// BlockKind identifies the structural role of a verse-bearing block.
type BlockKind string

// Block kinds.
const (
	BlockParagraph BlockKind = "paragraph"
	BlockQuoteLine BlockKind = "quote_line"
)

// Note is a footnote or cross-reference note attached to a verse.
type Note struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Body  string `json:"body"`
}

// Verse is one logical verse inside a block.
type Verse struct {
	Number     *int   `json:"number,omitempty"`
	Identifier string `json:"usfm"`
	Text       string `json:"text"`
	Notes      []Note `json:"notes,omitempty"`
}

// Node is a single entry of a Document. Text is set for headings and references,
// BlockKind and Verses for blocks.
type Node struct {
	Kind      NodeKind
	Text      string
	BlockKind BlockKind
	Verses    []Verse
}

// Document is the ordered result of parsing one chapter's markup.
type Document struct {
	Nodes []Node
}

// Empty reports whether the document carries no nodes.
func (d *Document) Empty() bool {
	return d == nil || len(d.Nodes) == 0
}

// Merge folds a fragment of the same verse into v.
func (v *Verse) Merge(fragment Verse) {
	switch {
	case v.Text == "":
		v.Text = fragment.Text
	case fragment.Text != "":
		v.Text = v.Text + " " + fragment.Text
	}

	v.Notes = append(v.Notes, fragment.Notes...)

	if v.Number == nil && fragment.Number != nil {
		number := *fragment.Number
		v.Number = &number
	}
}
