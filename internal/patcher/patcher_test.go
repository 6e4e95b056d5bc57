package patcher

import (
	"strings"
	"testing"

	"github.com/sokinpui/docexec/internal/parser"
	"github.com/sokinpui/docexec/model"
)

func parse(t *testing.T, doc string) []model.Unit {
	t.Helper()
	units, err := parser.ParseUnits("doc.txt", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	return units
}

func TestReconstructRewritesChangedConsole(t *testing.T) {
	doc := "Before\n<unit>\n<code bash>\necho hi\n</code>\n<console>\nold\n</console>\n</unit>\nAfter\n"
	units := parse(t, doc)
	units[0].SetActual("hi\n")

	got, warnings, err := Reconstruct(doc, units, nil, Options{ShrinkWarning: true})
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	want := "Before\n<unit>\n<code bash>\necho hi\n</code>\n<console>\nhi\n</console>\n</unit>\nAfter\n"
	if got != want {
		t.Errorf("Reconstruct mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestReconstructKeepsFormattingWhenUnchanged(t *testing.T) {
	doc := "<unit>\n<code bash>\necho hi\n</code>\n<console>   hi   \n\n</console>\n</unit>\n"
	units := parse(t, doc)
	units[0].SetActual("hi")

	got, _, err := Reconstruct(doc, units, nil, Options{})
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if got != doc {
		t.Errorf("document changed:\ngot:\n%q\nwant:\n%q", got, doc)
	}
}

func TestReconstructIsIdempotent(t *testing.T) {
	doc := "<unit>\r\n<file txt a.txt>\r\nstale\r\n</file>\r\n<code bash>\r\ncat a.txt\r\n</code>\r\n<console>\r\n</console>\r\n</unit>\r\n"
	files := map[string]string{"a.txt": "line1\r\nline2"}

	first := parse(t, doc)
	first[0].SetActual("line1\r\nline2\r\n")
	once, _, err := Reconstruct(doc, first, files, Options{ShrinkWarning: true})
	if err != nil {
		t.Fatalf("first Reconstruct failed: %v", err)
	}
	if !strings.Contains(once, "<file txt a.txt>\r\nline1\r\nline2\r\n</file>") {
		t.Errorf("file block not replaced with CRLF framing: %q", once)
	}

	second := parse(t, once)
	second[0].SetActual("line1\r\nline2\r\n")
	twice, _, err := Reconstruct(once, second, files, Options{ShrinkWarning: true})
	if err != nil {
		t.Fatalf("second Reconstruct failed: %v", err)
	}
	if twice != once {
		t.Errorf("second pass changed the document:\nfirst:\n%q\nsecond:\n%q", once, twice)
	}
}

func TestReconstructShrinkWarning(t *testing.T) {
	doc := "<unit>\n<code bash>\nseq 2\n</code>\n<console>\n1\n2\n3\n</console>\n</unit>\n"
	units := parse(t, doc)
	units[0].SetActual("1\n2\n")

	_, warnings, err := Reconstruct(doc, units, nil, Options{ShrinkWarning: true})
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "(2)") || !strings.Contains(warnings[0], "(3)") {
		t.Errorf("warning does not name both line counts: %s", warnings[0])
	}
	if strings.Contains(warnings[0], "\n") {
		t.Errorf("warning must be printable on one line: %q", warnings[0])
	}

	_, warnings, err = Reconstruct(doc, units, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("shrink warning disabled, got %v", warnings)
	}
}

func TestReconstructMissingFileContent(t *testing.T) {
	doc := "<unit><file txt a.txt>x</file></unit>"
	units := parse(t, doc)
	if _, _, err := Reconstruct(doc, units, map[string]string{}, Options{}); err == nil {
		t.Error("expected an error when the file content is missing")
	}
}

func TestSplicerRejectsOverlap(t *testing.T) {
	s := NewSplicer("0123456789")
	if err := s.Replace(model.BlockLocation{Start: 2, End: 6}, "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.CopyTo(4); err == nil {
		t.Error("expected an error for a location behind the cursor")
	}
	if got := s.String(); got != "01\nx\n6789" {
		t.Errorf("String() = %q", got)
	}
}

func TestLineCount(t *testing.T) {
	tests := map[string]int{
		"":           1,
		"one":        1,
		"a\nb":       2,
		"a\r\nb":     2,
		"a\r\nb\r\n": 3,
		"a\rb":       2,
	}
	for in, want := range tests {
		if got := LineCount(in); got != want {
			t.Errorf("LineCount(%q) = %d, want %d", in, got, want)
		}
	}
}
