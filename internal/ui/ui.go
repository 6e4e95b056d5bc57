package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/docexec/docexec"
	"github.com/sokinpui/docexec/model"
)

// Output receives everything printed by this package.
var Output io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// Progress prints the progress of a run, one line per finished document.
func Progress(p docexec.Progress) {
	switch p.Event {
	case docexec.EventDocStarted:
		FaintColor.Fprintf(Output, "[%d/%d] %s\n", p.Index+1, p.Total, Rel(p.Path))
	case docexec.EventDocFinished:
		DocFinished(p.Doc)
	}
}

// DocFinished prints the closing line of a document.
func DocFinished(doc *model.DocResult) {
	if doc == nil {
		return
	}
	line := fmt.Sprintf("%s %s", Rel(doc.Path), doc.Describe())
	switch doc.Status {
	case model.StatusSuccess:
		if doc.HasWarnings() {
			Warning("! %s", line)
			for _, w := range doc.Warnings {
				Path("%s", w)
			}
			return
		}
		Success("✓ %s", line)
	case model.StatusFailure:
		Error("✗ %s", line)
	default:
		FaintColor.Fprintf(Output, "- %s\n", line)
	}
}

// PrintRunSummary prints the totals of a run.
func PrintRunSummary(run *model.RunResult, err error) {
	Header("\n--- Run Summary (%s) ---", run.Name)
	if len(run.Docs) == 0 {
		Info("No docs were executed.")
	} else {
		Info("%d doc(s): %d executed, %d failed, %d unchanged, %d skipped. %d code execution(s).",
			len(run.Docs),
			run.Count(model.StatusSuccess),
			run.Count(model.StatusFailure),
			run.Count(model.StatusCacheHit),
			run.Count(model.StatusSkipped),
			run.Executions())
	}
	if err != nil {
		Error("Error: %v", err)
		if cause := model.AbortCause(err); cause != nil {
			Error("Cause: %v", cause)
		}
		return
	}
	if run.Succeeded() {
		Success("Success.")
	} else {
		Error("%d error(s).", run.Errors())
	}
}

// Rel shortens path relative to the working directory when it lives below it.
func Rel(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
