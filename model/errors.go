package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped matches every AbortError with errors.Is.
var ErrStopped = errors.New("stop at first error or warning")

// ParseError reports a malformed document.
type ParseError struct {
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Msg)
}

// CacheError reports an I/O failure on the cache mirror.
type CacheError struct {
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error for %s: %v", e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// LookupError reports a missing document or embedded file.
type LookupError struct {
	Path  string
	Tried []string
}

func (e *LookupError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("the path (%s) does not exist", e.Path)
	}
	return fmt.Sprintf("the file path (%s) found in the doc was not found. No files located at: %s",
		e.Path, strings.Join(e.Tried, ", "))
}

// ExecutionError reports a failed code execution: non-zero exit, compile
// failure, timeout or an uncaught fault. Output holds what was captured.
type ExecutionError struct {
	Command    string
	ExitStatus int
	Output     string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitStatus)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// WarningCondition is raised when a document produced warnings and the run
// is configured to stop on them.
type WarningCondition struct {
	Path     string
	Warnings []string
}

func (e *WarningCondition) Error() string {
	return fmt.Sprintf("%d warning(s) were seen in %s", len(e.Warnings), e.Path)
}

// AbortError stops a run at the first error or warning. The headline names
// the document and the unit; the cause is available through Unwrap.
type AbortError struct {
	Path  string
	Code  string
	Cause error
}

func (e *AbortError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s (doc %s)", ErrStopped, e.Path)
	}
	return fmt.Sprintf("%s (doc %s, unit %s)", ErrStopped, e.Path, OneLine(strings.TrimSpace(e.Code)))
}

func (e *AbortError) Unwrap() error { return e.Cause }

func (e *AbortError) Is(target error) bool { return target == ErrStopped }

// AbortCause returns the cause of the AbortError in err's chain, or nil.
func AbortCause(err error) error {
	var abort *AbortError
	if errors.As(err, &abort) {
		return abort.Cause
	}
	return nil
}
