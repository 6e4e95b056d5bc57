package model

import (
	"fmt"
	"time"
)

// Status is the terminal state of a document in a run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSkipped  Status = "skipped"
	StatusCacheHit Status = "cache-hit"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
)

// DocResult captures the processing of one document.
type DocResult struct {
	Path       string
	Status     Status
	Executions int
	Errors     int
	Warnings   []string
	Duration   time.Duration
	// NewDoc is the reconstructed document. Empty when the document was not executed.
	NewDoc string
	// ExitStatus is 0 on success, 1 on failure and -1 for skips and cache hits.
	ExitStatus int
	// Err is the error that failed the document, if any.
	Err error

	start  time.Time
	closed bool
}

// HasRun reports whether the document went through execution.
func (r *DocResult) HasRun() bool {
	return r.Status != StatusCacheHit && r.Status != StatusSkipped
}

// HasWarnings reports whether warnings were recorded.
func (r *DocResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// AddWarning records a non-fatal warning.
func (r *DocResult) AddWarning(w string) {
	r.Warnings = append(r.Warnings, w)
}

// Close finalizes the result with a terminal status. It returns an error if
// the result was already closed.
func (r *DocResult) Close(status Status) error {
	if r.closed {
		return fmt.Errorf("result for %s already closed with status %s", r.Path, r.Status)
	}
	r.Status = status
	switch status {
	case StatusSuccess:
		r.ExitStatus = 0
	case StatusSkipped, StatusCacheHit:
		r.ExitStatus = -1
	default:
		r.ExitStatus = 1
	}
	r.Duration = time.Since(r.start)
	r.closed = true
	return nil
}

// RunResult aggregates the document results of one invocation.
type RunResult struct {
	Name      string
	StartTime time.Time
	Size      int
	Docs      []*DocResult
}

// NewRunResult starts a run over size documents.
func NewRunResult(name string, size int) *RunResult {
	return &RunResult{
		Name:      name,
		StartTime: time.Now(),
		Size:      size,
	}
}

// Open creates the result of the next document. The previous result must be closed.
func (r *RunResult) Open(path string) (*DocResult, error) {
	if n := len(r.Docs); n > 0 && !r.Docs[n-1].closed {
		return nil, fmt.Errorf("internal error: the result for %s is still open", r.Docs[n-1].Path)
	}
	doc := &DocResult{
		Path:   path,
		Status: StatusPending,
		start:  time.Now(),
	}
	r.Docs = append(r.Docs, doc)
	return doc, nil
}

// Errors returns the total number of errors across documents.
func (r *RunResult) Errors() int {
	total := 0
	for _, d := range r.Docs {
		total += d.Errors
	}
	return total
}

// Executions returns the total number of code executions across documents.
func (r *RunResult) Executions() int {
	total := 0
	for _, d := range r.Docs {
		total += d.Executions
	}
	return total
}

// Succeeded reports whether every document ended without failure.
func (r *RunResult) Succeeded() bool {
	for _, d := range r.Docs {
		if d.Status == StatusFailure || d.Errors > 0 {
			return false
		}
	}
	return true
}

// Describe renders the outcome of the document on one line, without the path.
func (r *DocResult) Describe() string {
	switch r.Status {
	case StatusSkipped:
		return "skipped"
	case StatusCacheHit:
		return "unchanged since the last run"
	case StatusSuccess:
		if r.HasWarnings() {
			return fmt.Sprintf("executed (%d execution(s), %d warning(s))", r.Executions, len(r.Warnings))
		}
		return fmt.Sprintf("executed (%d execution(s))", r.Executions)
	case StatusFailure:
		if cause := AbortCause(r.Err); cause != nil {
			return "failed: " + OneLine(cause.Error())
		}
		if r.Err != nil {
			return "failed: " + OneLine(r.Err.Error())
		}
		return fmt.Sprintf("failed (%d error(s))", r.Errors)
	}
	return string(r.Status)
}

// Count returns the number of documents closed with status.
func (r *RunResult) Count(status Status) int {
	n := 0
	for _, d := range r.Docs {
		if d.Status == status {
			n++
		}
	}
	return n
}
