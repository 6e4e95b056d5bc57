package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/sokinpui/docexec/cli"
	"github.com/sokinpui/docexec/docexec"
	"github.com/sokinpui/docexec/internal/logs"
	"github.com/sokinpui/docexec/internal/tui"
	"github.com/sokinpui/docexec/internal/ui"
	"github.com/sokinpui/docexec/model"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	interactive := cfg.Command == cli.CommandRun &&
		len(cfg.Paths) > 0 &&
		!cfg.NoAnimation &&
		isatty.IsTerminal(os.Stderr.Fd())

	var terminal io.Writer = os.Stderr
	if interactive {
		// The TUI owns the terminal.
		terminal = nil
	}
	logger, closeLog, err := logs.New(logs.Options{
		Level:    cfg.LogLevel,
		Terminal: terminal,
		File:     cfg.LogFile,
		Journal:  cfg.LogJournal,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	app, err := docexec.New(cfg, docexec.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subcommands that print to stdout and should not run the TUI.
	if cfg.Command != cli.CommandRun {
		if _, err := app.Execute(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	var result *model.RunResult
	if interactive {
		m := tui.New(ctx, app)
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
		m.SetProgram(p)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
			return 1
		}
		result, err = m.Result()
	} else {
		app.SetProgressCallback(ui.Progress)
		result, err = app.Execute(ctx)
		var detailed *docexec.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		if result != nil && len(cfg.Paths) > 0 {
			ui.PrintRunSummary(result, err)
		} else if err != nil {
			ui.Error("Error: %v", err)
		}
	}

	if err != nil || result == nil || !result.Succeeded() {
		return 1
	}
	return 0
}
