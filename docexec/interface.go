package docexec

import (
	"context"
	"fmt"
	"time"

	"github.com/sokinpui/docexec/cli"
	"github.com/sokinpui/docexec/model"
)

// Config for using docexec as a library.
type Config struct {
	// Directories where the files of the file blocks are searched, in order.
	SearchPaths []string
	// Timeout of a single execution. Zero disables it.
	Timeout time.Duration
	// Capture the standard error of the executions.
	CaptureStderr bool
	// In-process command handlers, by name.
	Handlers map[string]model.Handler
	// CommandHandlers routes shell command names to handlers.
	CommandHandlers map[string]string
}

// ExecuteText executes the units of a document given as text and returns the
// rewritten document with its warnings. Nothing is cached or written.
func ExecuteText(ctx context.Context, content string, config Config) (string, []string, error) {
	cliCfg := cli.Default()
	cliCfg.Cache = false
	cliCfg.StopAtFirstError = true
	cliCfg.SearchPaths = config.SearchPaths
	cliCfg.Timeout = config.Timeout
	cliCfg.CaptureStderr = config.CaptureStderr
	cliCfg.Handlers = config.Handlers
	cliCfg.CommandHandlers = config.CommandHandlers

	app, err := New(cliCfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to initialize docexec app: %w", err)
	}
	doc, err := app.RunText(ctx, "text", content)
	if err != nil {
		return "", nil, err
	}
	return doc.NewDoc, doc.Warnings, nil
}
