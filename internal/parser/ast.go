package parser

import (
	"bytes"
	"sort"

	"github.com/sokinpui/docexec/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaskedRanges uses a markdown AST to find the byte ranges of fenced code
// blocks (fence lines included) and code spans. Unit tags starting inside
// those ranges are examples, not units.
func MaskedRanges(source []byte) []model.BlockLocation {
	var ranges []model.BlockLocation
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			if r, ok := fencedRange(n, source); ok {
				ranges = append(ranges, r)
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					ranges = append(ranges, model.BlockLocation{Start: t.Segment.Start, End: t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}

	// The walker never fails.
	_ = ast.Walk(root, walker)

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges
}

// fencedRange returns the range from the start of the opening fence line to
// the end of the closing fence line.
func fencedRange(block *ast.FencedCodeBlock, source []byte) (model.BlockLocation, bool) {
	lines := block.Lines()

	var openLineStart, afterContent int
	switch {
	case lines.Len() > 0:
		first := lines.At(0)
		// The byte before the first content line is the fence line break.
		openLineStart = lineStart(source, first.Start-1)
		afterContent = lines.At(lines.Len() - 1).Stop
	case block.Info != nil:
		openLineStart = lineStart(source, block.Info.Segment.Start)
		afterContent = lineEnd(source, block.Info.Segment.Stop)
	default:
		return model.BlockLocation{}, false
	}

	return model.BlockLocation{Start: openLineStart, End: lineEnd(source, afterContent)}, true
}

// lineStart returns the offset of the first byte of the line holding offset.
func lineStart(source []byte, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.LastIndexByte(source[:offset], '\n') + 1
}

// lineEnd returns the offset just after the line break ending the line that
// holds offset, or the end of source.
func lineEnd(source []byte, offset int) int {
	if offset >= len(source) {
		return len(source)
	}
	i := bytes.IndexByte(source[offset:], '\n')
	if i < 0 {
		return len(source)
	}
	return offset + i + 1
}
