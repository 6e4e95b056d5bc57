package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/sokinpui/docexec/model"
)

func TestParseUnitsLocations(t *testing.T) {
	doc := "Intro\n" +
		"<unit envGREETING=hello flag>\n" +
		"<file txt data/input.txt>\nold\n</file>\n" +
		"<code bash extra>\necho $GREETING\n</code>\n" +
		"<console>\nhello\n</console>\n" +
		"</unit>\n" +
		"Outro\n"

	units, err := ParseUnits("doc.txt", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	u := units[0]

	if got := u.Env["GREETING"]; got != "hello" {
		t.Errorf("Env[GREETING] = %q, want %q", got, "hello")
	}
	if len(u.Env) != 1 {
		t.Errorf("expected only one env entry, got %v", u.Env)
	}

	if u.Code == nil || u.Code.Language != "bash" {
		t.Fatalf("unexpected code block: %+v", u.Code)
	}
	if got := doc[u.Code.Location.Start:u.Code.Location.End]; got != u.Code.Code {
		t.Errorf("code location covers %q, want %q", got, u.Code.Code)
	}
	if u.Code.Code != "\necho $GREETING\n" {
		t.Errorf("code = %q", u.Code.Code)
	}

	if u.Console == nil {
		t.Fatal("expected a console block")
	}
	if got := doc[u.Console.Location.Start:u.Console.Location.End]; got != "\nhello\n" {
		t.Errorf("console location covers %q", got)
	}

	if len(u.Files) != 1 {
		t.Fatalf("expected 1 file block, got %d", len(u.Files))
	}
	f := u.Files[0]
	if f.Language != "txt" || f.Path != "data/input.txt" || f.Content != "old" {
		t.Errorf("unexpected file block: %+v", f)
	}
	if got := doc[f.Location.Start:f.Location.End]; got != "\nold\n" {
		t.Errorf("file location covers %q", got)
	}
}

func TestParseUnitsMultiple(t *testing.T) {
	doc := "<unit><code bash>echo 1</code></unit>\n" +
		"<unit><file txt a.txt></file><file txt b.txt></file></unit>\n" +
		"<unit><code bash>   </code><console>x</console></unit>\n"

	units, err := ParseUnits("doc.txt", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	for i, u := range units {
		if u.Index != i {
			t.Errorf("unit %d has index %d", i, u.Index)
		}
	}
	if !units[0].HasCode() {
		t.Error("unit 0 should have code")
	}
	if units[1].Code != nil {
		t.Error("unit 1 is a file only unit")
	}
	if got := units[1].FilePaths(); len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("unit 1 file paths = %v", got)
	}
	if units[2].HasCode() {
		t.Error("whitespace only code must not count as code")
	}
}

func TestParseUnitsErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "file after code",
			doc:     "<unit><code bash>ls</code><file txt a.txt>x</file></unit>",
			wantMsg: "file node must be before the code node",
		},
		{
			name:    "console before code",
			doc:     "<unit><console>x</console><code bash>ls</code></unit>",
			wantMsg: "console node must be after the code node",
		},
		{
			name:    "file after console",
			doc:     "<unit><console>x</console><file txt a.txt>x</file></unit>",
			wantMsg: "console node must be after the file node",
		},
		{
			name:    "unclosed unit",
			doc:     "<unit><code bash>echo 1</code></unit>\n<unit><code bash>echo 2</code>\n",
			wantMsg: "seems not to be closed",
		},
		{
			name:    "file without path",
			doc:     "<unit><file txt>x</file></unit>",
			wantMsg: "has no path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnits("doc.txt", tt.doc)
			var parseErr *model.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *model.ParseError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
			if parseErr.Path != "doc.txt" {
				t.Errorf("error path = %q", parseErr.Path)
			}
		})
	}
}

func TestParseUnitsIgnoresLookalikeTags(t *testing.T) {
	doc := "<units> are described below\n<unit><code bash>echo 1</code></unit>\n"
	units, err := ParseUnits("doc.txt", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 1 {
		t.Errorf("expected 1 unit, got %d", len(units))
	}
}

func TestParseUnitsMarkdownFences(t *testing.T) {
	doc := "# Usage\n\n" +
		"Write a unit like this:\n\n" +
		"```xml\n<unit>\n<code bash>echo example\n```\n\n" +
		"Or inline `<unit>` markup.\n\n" +
		"<unit>\n<code bash>\necho real\n</code>\n</unit>\n"

	units, err := ParseUnits("guide.md", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if strings.TrimSpace(units[0].CodeText()) != "echo real" {
		t.Errorf("unexpected code %q", units[0].CodeText())
	}

	// The same text is not masked for a plain document.
	if _, err := ParseUnits("guide.txt", doc); err == nil {
		t.Error("expected the fenced opening tag to be reported as unclosed in a text doc")
	}
}

func TestParseUnitsEmptyDocument(t *testing.T) {
	units, err := ParseUnits("empty.txt", "no units here")
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
}

func TestParseUnitsMarkdownFenceInsideConsole(t *testing.T) {
	// The first console holds a fence opener that Markdown never closes, so
	// everything after it reads as one fenced block.
	doc := "<unit>\n<code bash>\nhead -3 README.md\n</code>\n" +
		"<console>\n# Title\n\n```bash\n</console>\n</unit>\n\n" +
		"<unit>\n<code bash>\necho second\n</code>\n</unit>\n"

	units, err := ParseUnits("notes.md", doc)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if strings.TrimSpace(units[1].CodeText()) != "echo second" {
		t.Errorf("unexpected second unit code %q", units[1].CodeText())
	}
}
