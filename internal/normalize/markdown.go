package normalize

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownText renders the visible text of a markdown document, one block per line.
func (n *Normalizer) markdownText(src []byte) string {
	doc := n.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := node.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				newline()
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				newline()
				b.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(v.Segment.Value(src))
				switch {
				case v.HardLineBreak():
					b.WriteByte('\n')
				case v.SoftLineBreak():
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(v.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(v.Label(src))
			}
			return ast.WalkSkipChildren, nil
		}

		if !entering && node.Type() == ast.TypeBlock && node.Kind() != ast.KindDocument {
			newline()
			switch node.Kind() {
			case ast.KindHeading, ast.KindParagraph, ast.KindList, ast.KindBlockquote:
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}
