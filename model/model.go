package model

import "strings"

// BlockLocation is the half-open byte range [Start, End) of the inner content
// of a block in a document.
type BlockLocation struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the location.
func (l BlockLocation) Len() int {
	return l.End - l.Start
}

// FileBlock is a `<file lang path>` block. Its content is replaced with the
// live content of the file on disk.
type FileBlock struct {
	Language string
	Path     string
	Content  string
	Location BlockLocation
}

// CodeBlock is the `<code lang>` block of a unit.
type CodeBlock struct {
	Language string
	Code     string
	Location BlockLocation
}

// ConsoleBlock is the `<console>` block of a unit holding the expected output.
type ConsoleBlock struct {
	Content  string
	Location BlockLocation
}

// Unit is one executable test case found in a document.
type Unit struct {
	// Index is the position of the unit in the document, starting at 0.
	Index int
	// Env holds the environment overrides declared with env<NAME>=<value>.
	Env     map[string]string
	Files   []FileBlock
	Code    *CodeBlock
	Console *ConsoleBlock
	// Actual is the output attached during a run. Nil until the unit has
	// been executed or its cached output reused.
	Actual *string
}

// HasCode reports whether the unit carries code worth executing.
func (u *Unit) HasCode() bool {
	return u.Code != nil && strings.TrimSpace(u.Code.Code) != ""
}

// CodeText returns the raw code, or an empty string for file-only units.
func (u *Unit) CodeText() string {
	if u.Code == nil {
		return ""
	}
	return u.Code.Code
}

// Language returns the declared code language, or an empty string.
func (u *Unit) Language() string {
	if u.Code == nil {
		return ""
	}
	return u.Code.Language
}

// FilePaths returns the declared paths of the unit file blocks, in order.
func (u *Unit) FilePaths() []string {
	paths := make([]string, len(u.Files))
	for i, f := range u.Files {
		paths[i] = f.Path
	}
	return paths
}

// SetActual attaches an execution result to the unit.
func (u *Unit) SetActual(output string) {
	u.Actual = &output
}

// OneLine renders s on a single line with line breaks made visible.
func OneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", `\r`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
