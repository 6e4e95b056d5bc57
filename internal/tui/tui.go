package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/docexec/docexec"
	"github.com/sokinpui/docexec/internal/ui"
	"github.com/sokinpui/docexec/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

const maxStatusWidth = 72

// --- Messages ---
type progressMsg docexec.Progress

type doneMsg struct {
	run *model.RunResult
	err error
}

// --- Model ---
type Model struct {
	app     *docexec.App
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state
	status  string
	run     *model.RunResult
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
)

func New(ctx context.Context, app *docexec.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		app:     app,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
		state:   stateProcessing,
		status:  "Processing...",
	}
}

// SetProgram routes the progress of the app to the program.
func (m *Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(pr docexec.Progress) {
		p.Send(progressMsg(pr))
	})
}

// Result returns the outcome of the run once the program has exited.
func (m *Model) Result() (*model.RunResult, error) {
	return m.run, m.err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.status = "Cancelling..."
			m.cancel()
		}

	case progressMsg:
		return m, m.onProgress(docexec.Progress(msg))

	case doneMsg:
		m.state = stateSummary
		m.run = msg.run
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// onProgress updates the transient status line. Finished documents are
// printed above the program as permanent lines.
func (m *Model) onProgress(p docexec.Progress) tea.Cmd {
	switch p.Event {
	case docexec.EventDocStarted:
		m.status = fmt.Sprintf("[%d/%d] %s", p.Index+1, p.Total, ui.Rel(p.Path))
	case docexec.EventUnitStarted:
		m.status = fmt.Sprintf("%s, unit %d/%d: %s", ui.Rel(p.Path), p.Index+1, p.Total, truncate(model.OneLine(strings.TrimSpace(p.Code))))
	case docexec.EventDocFinished:
		if p.Doc != nil {
			return tea.Println(closingLine(p.Doc))
		}
	}
	return nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.status)
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func closingLine(doc *model.DocResult) string {
	line := fmt.Sprintf("%s %s", ui.Rel(doc.Path), doc.Describe())
	switch doc.Status {
	case model.StatusSuccess:
		if doc.HasWarnings() {
			var b strings.Builder
			b.WriteString(warningStyle.Render("! " + line))
			for _, w := range doc.Warnings {
				b.WriteString("\n  " + faintStyle.Render(w))
			}
			return b.String()
		}
		return successStyle.Render("✓ " + line)
	case model.StatusFailure:
		return errorStyle.Render("✗ " + line)
	default:
		return faintStyle.Render("- " + line)
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.run == nil || len(m.run.Docs) == 0 {
		if m.err == nil {
			b.WriteString(faintStyle.Render("Nothing to do."))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("Run %s", m.run.Name)))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s\n",
			successStyle.Render(fmt.Sprintf("%d executed", m.run.Count(model.StatusSuccess))),
			errorStyle.Render(fmt.Sprintf("%d failed", m.run.Count(model.StatusFailure))),
			faintStyle.Render(fmt.Sprintf("%d unchanged", m.run.Count(model.StatusCacheHit))),
			faintStyle.Render(fmt.Sprintf("%d skipped", m.run.Count(model.StatusSkipped))),
			faintStyle.Render(fmt.Sprintf("%d execution(s)", m.run.Executions())),
		))
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
		if cause := model.AbortCause(m.err); cause != nil {
			b.WriteString(errorStyle.Render("Cause: " + cause.Error()))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) runApp() tea.Msg {
	run, err := m.app.Execute(m.ctx)
	if err != nil {
		// Check for detailed error to print stack
		if e, ok := err.(*docexec.DetailedError); ok {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
	}
	return doneMsg{run: run, err: err}
}

func truncate(s string) string {
	if len(s) <= maxStatusWidth {
		return s
	}
	return s[:maxStatusWidth-3] + "..."
}
