package markup

import "github.com/book-expert/scripture-service/internal/scripture"

// documentBuilder accumulates nodes and owns the merge state of the open block.
type documentBuilder struct {
	nodes []scripture.Node
	open  *scripture.Node
}

func newDocumentBuilder() *documentBuilder {
	return &documentBuilder{nodes: make([]scripture.Node, 0)}
}

// addHeading closes the open block so no verse merges across the heading boundary.
func (b *documentBuilder) addHeading(kind scripture.NodeKind, headingText string) {
	b.closeBlock()

	if headingText == "" {
		return
	}

	b.nodes = append(b.nodes, scripture.Node{Kind: kind, Text: headingText})
}

// addBlock continues the open block when its kind matches, otherwise opens a new one.
func (b *documentBuilder) addBlock(kind scripture.BlockKind, fragments []scripture.Verse) {
	if b.open != nil && b.open.BlockKind != kind {
		b.closeBlock()
	}

	if b.open == nil {
		b.open = &scripture.Node{Kind: scripture.NodeBlock, BlockKind: kind}
	}

	for _, fragment := range fragments {
		if fragment.Text == "" && len(fragment.Notes) == 0 {
			continue
		}

		last := len(b.open.Verses) - 1
		if last >= 0 && fragment.Identifier != "" && b.open.Verses[last].Identifier == fragment.Identifier {
			b.open.Verses[last].Merge(fragment)

			continue
		}

		b.open.Verses = append(b.open.Verses, fragment)
	}
}

// closeBlock emits the open block; blocks left without verses are dropped.
func (b *documentBuilder) closeBlock() {
	if b.open != nil && len(b.open.Verses) > 0 {
		b.nodes = append(b.nodes, *b.open)
	}

	b.open = nil
}

func (b *documentBuilder) document() *scripture.Document {
	b.closeBlock()

	return &scripture.Document{Nodes: b.nodes}
}
