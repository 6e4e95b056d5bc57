package docexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/sokinpui/docexec/cli"
	"github.com/sokinpui/docexec/internal/cache"
	"github.com/sokinpui/docexec/internal/executor"
	"github.com/sokinpui/docexec/internal/fs"
	"github.com/sokinpui/docexec/internal/parser"
	"github.com/sokinpui/docexec/internal/patcher"
	"github.com/sokinpui/docexec/internal/results"
	"github.com/sokinpui/docexec/internal/source"
	"github.com/sokinpui/docexec/model"
)

// Event is the kind of a progress update.
type Event int

const (
	EventDocStarted Event = iota
	EventUnitStarted
	EventDocFinished
)

// Progress describes where a run is. For EventUnitStarted, Index and Total
// count the units of the document.
type Progress struct {
	Event Event
	Index int
	Total int
	Path  string
	// Code is the code of the unit being executed, for EventUnitStarted.
	Code string
	// Doc is the closed result, for EventDocFinished.
	Doc *model.DocResult
}

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(Progress)

// App orchestrates the execution of documents.
type App struct {
	cfg        *cli.Config
	logger     *slog.Logger
	dispatcher *executor.Dispatcher
	resolver   *fs.PathResolver
	cache      *cache.Store
	results    *results.Manager
	writer     Writer
	stdin      *os.File
	out        io.Writer

	docBase          string
	resumeFrom       string
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// Option customizes an App.
type Option func(*App)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithWriter replaces the writer of the rewritten documents.
func WithWriter(w Writer) Option {
	return func(a *App) { a.writer = w }
}

// WithOutput sets where documents read from stdin, the env report and the
// result listing are printed. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithStdin sets the file a document is read from when no path is given.
func WithStdin(f *os.File) Option {
	return func(a *App) { a.stdin = f }
}

// New creates a new App instance. A nil cfg means cli.Default().
func New(cfg *cli.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = cli.Default()
	}
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		writer: FileWriter{},
		stdin:  os.Stdin,
		out:    os.Stdout,
	}
	if cfg.Nvim {
		a.writer = &nvimWriter{}
	}
	for _, opt := range opts {
		opt(a)
	}

	docBase := cfg.DocPath
	if docBase == "" {
		docBase = "."
	}
	abs, err := filepath.Abs(docBase)
	if err != nil {
		return nil, fmt.Errorf("invalid doc path: %w", err)
	}
	a.docBase = abs
	if cfg.ResumeFrom != "" {
		a.resumeFrom = a.absDocPath(cfg.ResumeFrom)
	}

	a.resolver = fs.NewPathResolver(cfg.SearchPaths)

	commands := make(map[string]executor.CommandOverride)
	for _, name := range cfg.CommandNames() {
		override := executor.CommandOverride{
			Path:    cfg.CommandPaths[name],
			Handler: cfg.CommandHandlers[name],
		}
		if v, ok := cfg.CommandUseShell[name]; ok {
			override.UseShell = &v
		}
		commands[name] = override
	}
	a.dispatcher, err = executor.New(executor.Config{
		CaptureStderr: cfg.CaptureStderr,
		Timeout:       cfg.Timeout,
		Shell:         cfg.Shell,
		SearchDirs:    cfg.SearchPaths,
		Commands:      commands,
		Handlers:      cfg.Handlers,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the executor: %w", err)
	}

	if cfg.Cache || cfg.PurgeCache {
		a.cache, err = cache.Open(cfg.CacheDir, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to open the cache: %w", err)
		}
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		if dataDir, err = fs.DataDir(); err != nil {
			return nil, err
		}
	}
	a.results, err = results.New(dataDir, cfg.Name)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Config returns the configuration of the app.
func (a *App) Config() *cli.Config {
	return a.cfg
}

// Close releases the writer.
func (a *App) Close() error {
	if c, ok := a.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Execute runs the subcommand of the configuration. The run result is nil
// for the env and result subcommands.
func (a *App) Execute(ctx context.Context) (run *model.RunResult, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch a.cfg.Command {
	case cli.CommandEnv:
		return nil, a.WriteEnv(a.out)
	case cli.CommandResult:
		return nil, a.WriteResults(a.out)
	}
	if len(a.cfg.Paths) == 0 {
		return a.runSource(ctx)
	}
	return a.RunGlobs(ctx, a.cfg.Paths)
}

// RunGlobs expands the glob patterns against the doc path and runs the
// selected documents.
func (a *App) RunGlobs(ctx context.Context, patterns []string) (*model.RunResult, error) {
	paths, err := fs.ExpandGlobs(patterns, a.docBase, a.cfg.Extensions)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, paths...)
}

// Run executes the documents of paths in order. Directories expand to their
// documents. The returned error is non-nil when the run was aborted; the
// per-document outcome is in the result either way.
func (a *App) Run(ctx context.Context, paths ...string) (*model.RunResult, error) {
	if a.cfg.PurgeCache {
		removed, err := a.cache.PurgeAll()
		if err != nil {
			return nil, err
		}
		a.logger.Info("cache purged", "namespace", a.cfg.Name, "files", len(removed))
	}

	docs := a.expand(paths)
	run := model.NewRunResult(a.cfg.Name, len(docs))
	defer a.saveResults(run)

	for i, path := range docs {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		doc, err := run.Open(path)
		if err != nil {
			return run, err
		}
		a.report(Progress{Event: EventDocStarted, Index: i, Total: len(docs), Path: path})
		abortErr := a.processDoc(ctx, doc, i, len(docs))
		a.report(Progress{Event: EventDocFinished, Index: i, Total: len(docs), Path: path, Doc: doc})
		if abortErr != nil {
			return run, abortErr
		}
	}
	return run, nil
}

// RunText executes a document given as text, without cache and without
// writing it. The rewritten document is in the NewDoc of the result.
func (a *App) RunText(ctx context.Context, name, content string) (*model.DocResult, error) {
	run := model.NewRunResult(a.cfg.Name, 1)
	doc, err := run.Open(name)
	if err != nil {
		return nil, err
	}
	newDoc, err := a.executeDoc(ctx, doc, name, content, nil, false)
	if err != nil {
		doc.Err = err
		doc.Close(model.StatusFailure)
		return doc, err
	}
	doc.NewDoc = newDoc
	if doc.Errors > 0 {
		doc.Close(model.StatusFailure)
	} else {
		doc.Close(model.StatusSuccess)
	}
	return doc, nil
}

func (a *App) runSource(ctx context.Context) (*model.RunResult, error) {
	content, origin, err := source.New(a.stdin).GetContent()
	if err != nil {
		return nil, err
	}
	run := model.NewRunResult(a.cfg.Name, 1)
	if content == "" {
		a.logger.Warn("source is empty, nothing to process", "source", origin)
		return run, nil
	}

	doc, err := a.RunText(ctx, string(origin), content)
	if doc != nil {
		run.Docs = append(run.Docs, doc)
		a.report(Progress{Event: EventDocFinished, Index: 0, Total: 1, Path: doc.Path, Doc: doc})
	}
	if err != nil {
		return run, err
	}

	if _, err := io.WriteString(a.out, doc.NewDoc); err != nil {
		return run, err
	}
	if a.cfg.Copy {
		if err := source.Copy(doc.NewDoc); err != nil {
			return run, err
		}
	}
	return run, nil
}

// expand resolves the paths against the doc path and replaces directories
// with their documents. Missing paths are kept to be reported as failures.
func (a *App) expand(paths []string) []string {
	var docs []string
	for _, p := range paths {
		p = a.absDocPath(p)
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			docs = append(docs, p)
			continue
		}
		files, err := fs.DescendantFiles(p, a.cfg.Extensions)
		if err != nil {
			a.logger.Warn("cannot list directory", "path", p, "error", err)
			docs = append(docs, p)
			continue
		}
		docs = append(docs, files...)
	}
	return docs
}

func (a *App) absDocPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(a.docBase, p)
}

// processDoc runs one document and closes its result. The returned error is
// non-nil only when the run must stop.
func (a *App) processDoc(ctx context.Context, doc *model.DocResult, index, total int) error {
	path := doc.Path
	logger := a.logger.With("doc", path, "index", index+1, "total", total)

	if a.resumeFrom != "" && fs.CompareNatural(path, a.resumeFrom) < 0 {
		logger.Info("doc skipped", "resume-from", a.resumeFrom)
		return a.close(doc, model.StatusSkipped)
	}

	if !fs.Exists(path) {
		return a.fail(logger, doc, &model.LookupError{Path: path})
	}

	useCache := a.cfg.Cache && a.cache != nil
	if useCache {
		hit, err := a.cache.Hit(path)
		if err != nil {
			return a.fail(logger, doc, err)
		}
		if hit {
			logger.Info("doc unchanged since the last run, skipped")
			return a.close(doc, model.StatusCacheHit)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(logger, doc, fmt.Errorf("reading %s: %w", path, err))
	}
	content := string(data)

	var prior []model.Unit
	if useCache {
		if prior, _, err = a.cache.PriorUnits(path); err != nil {
			return a.fail(logger, doc, err)
		}
	}

	logger.Info("executing doc")
	newDoc, err := a.executeDoc(ctx, doc, path, content, prior, useCache)
	if err != nil {
		if errors.Is(err, model.ErrStopped) {
			doc.Err = err
			logger.Error("doc aborted", "error", err, "cause", model.AbortCause(err))
			a.close(doc, model.StatusFailure)
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			doc.Err = ctxErr
			a.close(doc, model.StatusFailure)
			return ctxErr
		}
		return a.fail(logger, doc, err)
	}
	doc.NewDoc = newDoc
	for _, w := range doc.Warnings {
		logger.Warn(w)
	}

	if doc.Errors == 0 && (!doc.HasWarnings() || a.cfg.PersistOnWarning) && !a.cfg.DryRun {
		if newDoc != content {
			if err := a.writer.Write(path, newDoc); err != nil {
				return a.fail(logger, doc, fmt.Errorf("writing %s: %w", path, err))
			}
			logger.Info("doc rewritten")
		}
		if useCache {
			if err := a.cache.Put(path, []byte(newDoc)); err != nil {
				return a.fail(logger, doc, err)
			}
		}
	}

	if doc.HasWarnings() && a.cfg.StopAtFirstWarning {
		cond := &model.WarningCondition{Path: path, Warnings: doc.Warnings}
		abort := &model.AbortError{Path: path, Cause: cond}
		doc.Err = abort
		logger.Error("doc aborted", "error", abort, "cause", cond)
		a.close(doc, model.StatusFailure)
		return abort
	}

	if doc.Errors > 0 {
		return a.close(doc, model.StatusFailure)
	}
	logger.Info("doc executed successfully", "executions", doc.Executions)
	return a.close(doc, model.StatusSuccess)
}

// executeDoc parses content, executes the units that changed since prior and
// reconstructs the document. Execution errors are counted on doc; they abort
// only with stop-at-first-error.
func (a *App) executeDoc(ctx context.Context, doc *model.DocResult, path, content string, prior []model.Unit, useCache bool) (string, error) {
	units, err := parser.ParseUnits(path, content)
	if err != nil {
		return "", err
	}

	files := make(map[string]string)
	executed := false
	for i := range units {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		unit := &units[i]

		for _, f := range unit.Files {
			if _, ok := files[f.Path]; ok {
				continue
			}
			resolved, err := a.resolver.Lookup(f.Path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", resolved, err)
			}
			files[f.Path] = string(data)
		}

		if !unit.HasCode() {
			continue
		}

		var before *model.Unit
		if i < len(prior) {
			before = &prior[i]
		}
		if useCache && !executed && !changed(unit, before) {
			a.logger.Debug("unit unchanged, cached console reused", "doc", path, "unit", i+1)
			if before.Console != nil {
				unit.SetActual(strings.TrimSpace(before.Console.Content))
			}
			continue
		}

		a.report(Progress{Event: EventUnitStarted, Path: path, Index: i, Total: len(units), Code: unit.CodeText()})
		executed = true
		doc.Executions++
		output, err := a.dispatcher.Run(ctx, unit)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var execErr *model.ExecutionError
			if !errors.As(err, &execErr) {
				return "", err
			}
			doc.Errors++
			if a.cfg.StopAtFirstError {
				return "", &model.AbortError{Path: path, Code: unit.CodeText(), Cause: err}
			}
			a.logger.Error("error during execute", "doc", path, "unit", i+1, "error", err)
			output = err.Error()
		}
		unit.SetActual(strings.TrimSpace(output))
	}

	newDoc, warnings, err := patcher.Reconstruct(content, units, files, patcher.Options{
		ShrinkWarning: a.cfg.ContentShrinkWarning,
	})
	if err != nil {
		return "", err
	}
	for _, w := range warnings {
		doc.AddWarning(w)
	}
	return newDoc, nil
}

// changed reports whether unit differs from its counterpart of the last
// successful run. File paths and code are compared; a missing counterpart or
// a missing prior console counts as a change.
func changed(unit, before *model.Unit) bool {
	if before == nil {
		return true
	}
	if unit.CodeText() != before.CodeText() {
		return true
	}
	current, previous := unit.FilePaths(), before.FilePaths()
	if len(current) != len(previous) {
		return true
	}
	for i := range current {
		if current[i] != previous[i] {
			return true
		}
	}
	return unit.Console != nil && before.Console == nil
}

// fail closes doc as a failure. Under stop-at-first-error the error is
// returned wrapped in an AbortError.
func (a *App) fail(logger *slog.Logger, doc *model.DocResult, err error) error {
	doc.Errors++
	doc.Err = err
	logger.Error("doc failed", "error", err)
	if cerr := a.close(doc, model.StatusFailure); cerr != nil {
		return cerr
	}
	if a.cfg.StopAtFirstError {
		return &model.AbortError{Path: doc.Path, Cause: err}
	}
	return nil
}

func (a *App) close(doc *model.DocResult, status model.Status) error {
	return doc.Close(status)
}

func (a *App) report(p Progress) {
	if a.progressCallback != nil {
		a.progressCallback(p)
	}
}

func (a *App) saveResults(run *model.RunResult) {
	if len(run.Docs) == 0 {
		return
	}
	path, err := a.results.Write(run, a.docBase)
	if err != nil {
		a.logger.Warn("cannot save the run results", "error", err)
		return
	}
	a.logger.Debug("run results saved", "file", path)
}
