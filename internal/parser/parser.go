package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sokinpui/docexec/model"
)

const (
	unitNodeName    = "unit"
	codeNodeName    = "code"
	consoleNodeName = "console"
	fileNodeName    = "file"

	// envPrefix marks a unit property as an environment override.
	envPrefix = "env"
)

var (
	unitRegex    = nodeRegex(unitNodeName)
	codeRegex    = nodeRegex(codeNodeName)
	consoleRegex = nodeRegex(consoleNodeName)
	fileRegex    = nodeRegex(fileNodeName)
)

// nodeRegex matches `<name props>content</name>` non-greedily across lines.
// Group 1 holds the properties, group 2 the inner content.
func nodeRegex(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<` + name + `\b([^>]*)>(.*?)</` + name + `>`)
}

// ParseUnits extracts the units of a document in document order. Locations
// are absolute byte offsets into content. For Markdown documents, unit tags
// inside fenced code blocks and code spans are ignored.
func ParseUnits(docPath, content string) ([]model.Unit, error) {
	var masked []model.BlockLocation
	if IsMarkdown(docPath) {
		masked = MaskedRanges([]byte(content))
	}

	var units []model.Unit
	pos := 0
	for pos < len(content) {
		m := unitRegex.FindStringSubmatchIndex(content[pos:])
		if m == nil {
			break
		}
		start := pos + m[0]
		if inRanges(start, masked) {
			pos = start + 1
			continue
		}

		unit := model.Unit{
			Index: len(units),
			Env:   parseProperties(content[pos+m[2] : pos+m[3]]),
		}
		bodyStart := pos + m[4]
		body := content[bodyStart : pos+m[5]]
		if err := parseBody(&unit, body, bodyStart, docPath); err != nil {
			return nil, err
		}
		if err := validateOrder(&unit, docPath); err != nil {
			return nil, err
		}
		units = append(units, unit)
		pos += m[1]
		masked = dropStartingWithin(masked, start, pos)
	}

	if opened := countOpenings(content, masked); opened != len(units) {
		return nil, unclosedError(docPath, opened, units)
	}
	return units, nil
}

// IsMarkdown reports whether the document path has a Markdown extension.
func IsMarkdown(docPath string) bool {
	switch strings.ToLower(filepath.Ext(docPath)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func parseBody(unit *model.Unit, body string, offset int, docPath string) error {
	if m := codeRegex.FindStringSubmatchIndex(body); m != nil {
		props := strings.Fields(body[m[2]:m[3]])
		code := &model.CodeBlock{
			Code:     body[m[4]:m[5]],
			Location: model.BlockLocation{Start: offset + m[4], End: offset + m[5]},
		}
		if len(props) > 0 {
			code.Language = props[0]
		}
		unit.Code = code
	}

	if m := consoleRegex.FindStringSubmatchIndex(body); m != nil {
		unit.Console = &model.ConsoleBlock{
			Content:  body[m[4]:m[5]],
			Location: model.BlockLocation{Start: offset + m[4], End: offset + m[5]},
		}
	}

	for _, m := range fileRegex.FindAllStringSubmatchIndex(body, -1) {
		props := strings.Fields(body[m[2]:m[3]])
		file := model.FileBlock{
			Content:  strings.TrimSpace(body[m[4]:m[5]]),
			Location: model.BlockLocation{Start: offset + m[4], End: offset + m[5]},
		}
		if len(props) >= 1 {
			file.Language = props[0]
		}
		if len(props) >= 2 {
			file.Path = props[1]
		}
		if file.Path == "" {
			return &model.ParseError{
				Path: docPath,
				Msg:  fmt.Sprintf("the file node of the unit %d has no path, expected <file lang path>", unit.Index+1),
			}
		}
		unit.Files = append(unit.Files, file)
	}
	return nil
}

// parseProperties reads space separated key=value pairs. Only env prefixed
// keys are interpreted; tokens without a value are ignored.
func parseProperties(props string) map[string]string {
	env := make(map[string]string)
	for _, token := range strings.Fields(props) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		if name, found := strings.CutPrefix(key, envPrefix); found && name != "" {
			env[name] = value
		}
	}
	return env
}

func validateOrder(unit *model.Unit, docPath string) error {
	for _, file := range unit.Files {
		if unit.Code != nil && file.Location.Start > unit.Code.Location.Start {
			return &model.ParseError{
				Path: docPath,
				Msg:  fmt.Sprintf("order is not good, the file node must be before the code node in the doc %s", docPath),
			}
		}
		if unit.Console != nil && file.Location.Start > unit.Console.Location.Start {
			return &model.ParseError{
				Path: docPath,
				Msg:  fmt.Sprintf("order is not good, the console node must be after the file node in the doc %s", docPath),
			}
		}
	}
	if unit.Code != nil && unit.Console != nil && unit.Console.Location.Start < unit.Code.Location.Start {
		return &model.ParseError{
			Path: docPath,
			Msg:  fmt.Sprintf("order is not good, the console node must be after the code node in the doc %s", docPath),
		}
	}
	return nil
}

func countOpenings(content string, masked []model.BlockLocation) int {
	opening := "<" + unitNodeName
	count := 0
	for pos := 0; ; {
		i := strings.Index(content[pos:], opening)
		if i < 0 {
			return count
		}
		next := pos + i + len(opening)
		if !inRanges(pos+i, masked) && (next == len(content) || !isWordByte(content[next])) {
			count++
		}
		pos = next
	}
}

func unclosedError(docPath string, opened int, units []model.Unit) error {
	var b strings.Builder
	fmt.Fprintf(&b, "a %s node seems not to be closed in the doc (%s). There are %d %s opening tags but only %d units were parsed.",
		unitNodeName, docPath, opened, unitNodeName, len(units))
	if n := len(units); n > 0 {
		last := units[n-1]
		switch {
		case last.Code != nil:
			fmt.Fprintf(&b, " Last parsed code unit: %s", model.OneLine(strings.TrimSpace(last.Code.Code)))
		case len(last.Files) > 0:
			fmt.Fprintf(&b, " Last parsed file unit: %s", last.Files[0].Path)
		}
	}
	return &model.ParseError{Path: docPath, Msg: b.String()}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// dropStartingWithin removes the ranges that start strictly inside the unit
// spanning [start, end). Markdown inside a console, such as a fence opener
// never closed, must not hide the units that follow.
func dropStartingWithin(ranges []model.BlockLocation, start, end int) []model.BlockLocation {
	kept := ranges[:0]
	for _, r := range ranges {
		if r.Start > start && r.Start < end {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func inRanges(offset int, ranges []model.BlockLocation) bool {
	for _, r := range ranges {
		if offset >= r.Start && offset < r.End {
			return true
		}
	}
	return false
}
