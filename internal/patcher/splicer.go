package patcher

import (
	"fmt"
	"strings"

	"github.com/sokinpui/docexec/model"
)

// Splicer builds a new document from an original one by copying the
// untouched spans and replacing block contents, moving a cursor forward.
type Splicer struct {
	original string
	eol      string
	cursor   int
	out      strings.Builder
}

// NewSplicer creates a Splicer positioned at the start of original.
func NewSplicer(original string) *Splicer {
	s := &Splicer{original: original, eol: DetectEOL(original)}
	s.out.Grow(len(original))
	return s
}

// CopyTo appends the original text between the cursor and offset.
func (s *Splicer) CopyTo(offset int) error {
	if offset < s.cursor {
		return fmt.Errorf("block at offset %d overlaps the previous block ending at %d", offset, s.cursor)
	}
	if offset > len(s.original) {
		return fmt.Errorf("block offset %d is beyond the document end (%d)", offset, len(s.original))
	}
	s.out.WriteString(s.original[s.cursor:offset])
	s.cursor = offset
	return nil
}

// Replace swaps the inner content of loc for content framed by line separators.
func (s *Splicer) Replace(loc model.BlockLocation, content string) error {
	if err := s.CopyTo(loc.Start); err != nil {
		return err
	}
	if loc.End < loc.Start || loc.End > len(s.original) {
		return fmt.Errorf("invalid block location [%d, %d)", loc.Start, loc.End)
	}
	s.out.WriteString(s.eol)
	s.out.WriteString(content)
	s.out.WriteString(s.eol)
	s.cursor = loc.End
	return nil
}

// String appends the rest of the original document and returns the result.
func (s *Splicer) String() string {
	s.out.WriteString(s.original[s.cursor:])
	s.cursor = len(s.original)
	return s.out.String()
}

// DetectEOL returns "\r\n" when the document uses it, otherwise "\n".
func DetectEOL(doc string) string {
	if strings.Contains(doc, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// LineCount counts lines the way an editor does: a text without line
// break is one line and "\r\n" counts as a single break.
func LineCount(s string) int {
	count := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			count++
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			count++
		}
	}
	return count
}
