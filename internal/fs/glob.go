package fs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandGlobs resolves glob patterns against base. Patterns support `**`,
// `*`, `?`, character classes and `{a,b}` alternatives. A pattern without an
// extension gets the `.{ext1,ext2}` suffix built from extensions. The paths
// of each pattern are sorted in natural order; a pattern matching nothing is
// an error.
func ExpandGlobs(patterns []string, base string, extensions []string) ([]string, error) {
	var all []string
	for _, pattern := range patterns {
		paths, err := expandGlob(pattern, base, extensions)
		if err != nil {
			return nil, err
		}
		all = append(all, paths...)
	}
	return all, nil
}

func expandGlob(pattern, base string, extensions []string) ([]string, error) {
	if strings.HasSuffix(pattern, "**") {
		pattern += "/*"
	}
	if !strings.Contains(filepath.Base(pattern), ".") && len(extensions) > 0 {
		pattern += ".{" + strings.Join(extensions, ",") + "}"
	}

	full := pattern
	if !filepath.IsAbs(full) {
		full = filepath.Join(base, pattern)
	}

	matches, err := doublestar.FilepathGlob(filepath.Clean(full), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid glob (%s): %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no docs selected for the glob (%s) with the doc path (%s)", pattern, base)
	}
	SortNatural(matches)
	return matches, nil
}
