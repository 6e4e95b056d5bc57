package patcher

import (
	"fmt"
	"strings"

	"github.com/sokinpui/docexec/model"
)

// Options tunes the reconstruction.
type Options struct {
	// ShrinkWarning records a warning when a console output has fewer
	// lines than the expected transcript it replaces.
	ShrinkWarning bool
}

// Reconstruct rebuilds a document from the original text, the units with
// their attached results and the live content of the file blocks, keyed by
// declared path. The output is byte-identical to the original outside the
// replaced blocks. It returns the new document and the shrink warnings.
func Reconstruct(original string, units []model.Unit, files map[string]string, opts Options) (string, []string, error) {
	s := NewSplicer(original)
	var warnings []string

	for i := range units {
		unit := &units[i]

		for _, file := range unit.Files {
			content, ok := files[file.Path]
			if !ok {
				return "", nil, fmt.Errorf("no content was provided for the file block (%s) of the unit %d", file.Path, unit.Index+1)
			}
			if err := s.Replace(file.Location, content); err != nil {
				return "", nil, fmt.Errorf("file block (%s): %w", file.Path, err)
			}
		}

		if !unit.HasCode() || unit.Console == nil || unit.Actual == nil {
			continue
		}

		console := unit.Console
		result := strings.TrimSpace(*unit.Actual)
		expected := strings.TrimSpace(console.Content)
		if result == expected {
			if err := s.CopyTo(console.Location.Start); err != nil {
				return "", nil, fmt.Errorf("console block of the unit %d: %w", unit.Index+1, err)
			}
			continue
		}

		if opts.ShrinkWarning {
			resultLines, expectedLines := LineCount(result), LineCount(expected)
			if resultLines < expectedLines {
				warnings = append(warnings, fmt.Sprintf(
					"a unit code produces less console lines (%d) than the actual (%d) in the page. Unit code: %s",
					resultLines, expectedLines, model.OneLine(unit.CodeText())))
			}
		}
		if err := s.Replace(console.Location, result); err != nil {
			return "", nil, fmt.Errorf("console block of the unit %d: %w", unit.Index+1, err)
		}
	}

	return s.String(), warnings, nil
}
