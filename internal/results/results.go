package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sokinpui/docexec/model"
)

const (
	resultsDirName = "results"
	fileExt        = ".jsonl"
	// TimeLayout names a result file after the start of its run.
	TimeLayout = "2006-01-02_15-04-05"
)

// Record is the persisted form of one document result.
type Record struct {
	Path       string   `json:"path"`
	Status     string   `json:"status"`
	Executions int      `json:"executions"`
	Errors     int      `json:"errors"`
	Warnings   []string `json:"warnings"`
	DurationMs int64    `json:"duration_ms"`
	ExitStatus int      `json:"exit_status"`
}

// File describes a stored result file.
type File struct {
	Name string
	Path string
	Size int64
}

// Manager stores the results of the runs of one configuration name.
type Manager struct {
	Dir string
}

// New creates a manager rooted at <dataDir>/<name>/results.
func New(dataDir, name string) (*Manager, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid result name %q", name)
	}
	return &Manager{Dir: filepath.Join(dataDir, name, resultsDirName)}, nil
}

// NewRecord converts a document result. The path is made relative to docBase
// when the document lives below it.
func NewRecord(doc *model.DocResult, docBase string) Record {
	path := doc.Path
	if docBase != "" {
		if rel, err := filepath.Rel(docBase, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	warnings := doc.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return Record{
		Path:       filepath.ToSlash(path),
		Status:     string(doc.Status),
		Executions: doc.Executions,
		Errors:     doc.Errors,
		Warnings:   warnings,
		DurationMs: doc.Duration.Milliseconds(),
		ExitStatus: doc.ExitStatus,
	}
}

// Write saves run as a new result file and returns its path.
func (m *Manager) Write(run *model.RunResult, docBase string) (string, error) {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return "", fmt.Errorf("could not create results directory: %w", err)
	}
	path := filepath.Join(m.Dir, run.StartTime.Format(TimeLayout)+fileExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("could not create result file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, doc := range run.Docs {
		if err := enc.Encode(NewRecord(doc, docBase)); err != nil {
			return "", fmt.Errorf("could not encode result of %s: %w", doc.Path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, f.Close()
}

// Read loads the records of a result file.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("invalid result file %s: %w", path, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// List returns the result files, newest first. A missing directory yields no files.
func (m *Manager) List() ([]File, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name: e.Name(),
			Path: filepath.Join(m.Dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return startTime(files[i].Name).After(startTime(files[j].Name))
	})
	return files, nil
}

func startTime(name string) time.Time {
	t, err := time.Parse(TimeLayout, strings.TrimSuffix(name, fileExt))
	if err != nil {
		return time.Time{}
	}
	return t
}
