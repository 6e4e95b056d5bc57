// Package config handles docexec.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "docexec.toml"

// File represents a docexec.toml project configuration. Unset optional
// values are nil so that they do not override defaults.
type File struct {
	Run      Run                `toml:"run"`
	Commands map[string]Command `toml:"commands"`

	// Dir is the directory containing the docexec.toml file (set at load time).
	Dir string `toml:"-"`
	// Path is the loaded file.
	Path string `toml:"-"`
}

// Run configures the run defaults.
type Run struct {
	Name                 string   `toml:"name"`
	SearchPaths          []string `toml:"search-paths"`
	DocPath              string   `toml:"doc-path"`
	Extensions           []string `toml:"extensions"`
	Timeout              string   `toml:"timeout"`
	Shell                string   `toml:"shell"`
	CaptureStderr        *bool    `toml:"capture-stderr"`
	Cache                *bool    `toml:"cache"`
	StopAtFirstError     *bool    `toml:"stop-at-first-error"`
	StopAtFirstWarning   *bool    `toml:"stop-at-first-warning"`
	ContentShrinkWarning *bool    `toml:"content-shrink-warning"`
	PersistOnWarning     *bool    `toml:"persist-on-warning"`
}

// Command overrides the execution of one shell command name.
type Command struct {
	Path     string `toml:"path"`
	Handler  string `toml:"handler"`
	UseShell *bool  `toml:"use-shell"`
}

// Load parses the docexec.toml file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s in %s", undecoded[0], path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	f.Path = abs
	f.Dir = filepath.Dir(abs)

	if _, err := f.Timeout(); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindAndLoad walks up from startDir to find a docexec.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*File, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Timeout returns the parsed run timeout, zero when unset.
func (f *File) Timeout() (time.Duration, error) {
	if f.Run.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(f.Run.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q in %s: %w", f.Run.Timeout, f.Path, err)
	}
	return d, nil
}

// Resolve returns p relative to the directory of the file, unless absolute.
func (f *File) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.Dir, p)
}
