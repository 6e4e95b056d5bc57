package docexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokinpui/docexec/cli"
	"github.com/sokinpui/docexec/model"
)

func newTestApp(t *testing.T, mutate func(cfg *cli.Config)) (*App, string) {
	t.Helper()
	docDir := t.TempDir()

	cfg := cli.Default()
	cfg.CacheDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.DocPath = docDir
	cfg.SearchPaths = []string{docDir}
	cfg.CommandHandlers = map[string]string{"echo": "echo", "fail": "fail"}
	cfg.Handlers = map[string]model.Handler{
		"fail": func(ctx context.Context, args []string, out io.Writer) error {
			io.WriteString(out, "failing\n")
			return errors.New("boom")
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	app, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return app, docDir
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func unit(code, console string) string {
	return "<unit>\n<code bash>\n" + code + "\n</code>\n<console>\n" + console + "\n</console>\n</unit>\n"
}

func TestRunRewritesThenHitsCache(t *testing.T) {
	app, dir := newTestApp(t, nil)
	path := writeDoc(t, dir, "a.txt", "Intro\n"+unit("echo one", "old")+"Outro\n")

	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	doc := run.Docs[0]
	if doc.Status != model.StatusSuccess || doc.Executions != 1 {
		t.Fatalf("first run: status=%s executions=%d err=%v", doc.Status, doc.Executions, doc.Err)
	}
	want := "Intro\n" + unit("echo one", "one") + "Outro\n"
	if got := readDoc(t, path); got != want {
		t.Errorf("rewritten doc:\n%q\nwant:\n%q", got, want)
	}

	run, err = app.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if run.Docs[0].Status != model.StatusCacheHit || run.Executions() != 0 {
		t.Errorf("second run: status=%s executions=%d", run.Docs[0].Status, run.Executions())
	}
	if got := readDoc(t, path); got != want {
		t.Errorf("cache hit changed the doc: %q", got)
	}

	files, err := app.results.List()
	if err != nil || len(files) == 0 {
		t.Errorf("no result file saved: %v", err)
	}
}

func TestRunUnchangedDocIsByteIdentical(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.Cache = false })
	content := "Title\r\n\r\n<unit>\r\n<code bash>\r\necho same\r\n</code>\r\n<console>\r\nsame\r\n</console>\r\n</unit>\r\n"
	path := writeDoc(t, dir, "crlf.txt", content)

	for i := 0; i < 2; i++ {
		if _, err := app.Run(context.Background(), path); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		if got := readDoc(t, path); got != content {
			t.Fatalf("run %d changed the doc: %q", i, got)
		}
	}
}

func TestRunCascadeInvalidation(t *testing.T) {
	app, dir := newTestApp(t, nil)
	path := writeDoc(t, dir, "cascade.txt", unit("echo a", "a")+unit("echo b", "b")+unit("echo c", "c"))

	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Executions() != 3 {
		t.Fatalf("first run executions = %d, want 3", run.Executions())
	}

	writeDoc(t, dir, "cascade.txt", unit("echo a", "a")+unit("echo B", "b")+unit("echo c", "c"))
	run, err = app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Executions() != 2 {
		t.Errorf("executions after changing the second unit = %d, want 2", run.Executions())
	}
	want := unit("echo a", "a") + unit("echo B", "B") + unit("echo c", "c")
	if got := readDoc(t, path); got != want {
		t.Errorf("doc = %q, want %q", got, want)
	}
}

func TestRunWhitespaceChangeInCode(t *testing.T) {
	app, dir := newTestApp(t, nil)
	path := writeDoc(t, dir, "ws.txt", unit("echo one", "one"))
	if _, err := app.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	writeDoc(t, dir, "ws.txt", unit("echo  one", "one"))
	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Executions() != 1 {
		t.Errorf("executions = %d, want 1", run.Executions())
	}
}

func TestRunChangeOutsideUnitsReusesConsoles(t *testing.T) {
	app, dir := newTestApp(t, nil)
	path := writeDoc(t, dir, "prose.txt", "Before\n"+unit("echo one", "one"))
	if _, err := app.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	writeDoc(t, dir, "prose.txt", "Before, reworded\n"+unit("echo one", "one"))
	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Docs[0].Status != model.StatusSuccess || run.Executions() != 0 {
		t.Errorf("status=%s executions=%d, want success without execution", run.Docs[0].Status, run.Executions())
	}
}

func TestRunShrinkWarningAborts(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.StopAtFirstWarning = true })
	path := writeDoc(t, dir, "shrink.txt", unit("echo a", "a\nb"))
	other := writeDoc(t, dir, "z-next.txt", unit("echo z", "z"))

	run, err := app.Run(context.Background(), path, other)
	if !errors.Is(err, model.ErrStopped) {
		t.Fatalf("expected an abort, got %v", err)
	}
	var cond *model.WarningCondition
	if !errors.As(err, &cond) {
		t.Fatalf("abort cause is not a warning condition: %v", err)
	}
	if len(cond.Warnings) != 1 || !strings.Contains(cond.Warnings[0], "less console lines (1) than the actual (2)") {
		t.Errorf("warnings = %v", cond.Warnings)
	}
	if len(run.Docs) != 1 {
		t.Errorf("the run went on after the abort: %d docs", len(run.Docs))
	}
}

func TestRunResumeFrom(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.ResumeFrom = "2-b.txt" })
	first := writeDoc(t, dir, "1-a.txt", unit("echo a", "a"))
	second := writeDoc(t, dir, "2-b.txt", unit("echo b", "b"))
	third := writeDoc(t, dir, "3-c.txt", unit("echo c", "stale"))

	run, err := app.Run(context.Background(), first, second, third)
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Docs) != 3 {
		t.Fatalf("docs = %d, want 3", len(run.Docs))
	}
	if run.Docs[0].Status != model.StatusSkipped || run.Docs[0].ExitStatus != -1 {
		t.Errorf("first doc: %s", run.Docs[0].Status)
	}
	for _, doc := range run.Docs[1:] {
		if doc.Status != model.StatusSuccess || doc.Executions != 1 {
			t.Errorf("%s: status=%s executions=%d", filepath.Base(doc.Path), doc.Status, doc.Executions)
		}
	}
	if got := readDoc(t, third); got != unit("echo c", "c") {
		t.Errorf("the doc after the resume point was not executed: %q", got)
	}
}

func TestRunMissingPath(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.StopAtFirstError = false })
	existing := writeDoc(t, dir, "b.txt", unit("echo b", "b"))

	run, err := app.Run(context.Background(), "missing.txt", existing)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var lookupErr *model.LookupError
	if run.Docs[0].Status != model.StatusFailure || !errors.As(run.Docs[0].Err, &lookupErr) {
		t.Errorf("missing doc: status=%s err=%v", run.Docs[0].Status, run.Docs[0].Err)
	}
	if run.Docs[1].Status != model.StatusSuccess {
		t.Errorf("existing doc: %s", run.Docs[1].Status)
	}
	if run.Succeeded() {
		t.Error("the run should not succeed")
	}
}

func TestRunStopAtFirstError(t *testing.T) {
	app, dir := newTestApp(t, nil)
	content := unit("fail now", "expected") + unit("echo after", "after")
	path := writeDoc(t, dir, "fail.txt", content)

	run, err := app.Run(context.Background(), path)
	if !errors.Is(err, model.ErrStopped) {
		t.Fatalf("expected an abort, got %v", err)
	}
	var execErr *model.ExecutionError
	if !errors.As(err, &execErr) || execErr.ExitStatus != 1 {
		t.Errorf("abort cause = %v", err)
	}
	if !strings.Contains(err.Error(), "unit fail now") {
		t.Errorf("headline = %q", err.Error())
	}
	if run.Docs[0].Status != model.StatusFailure || run.Docs[0].Executions != 1 {
		t.Errorf("doc: status=%s executions=%d", run.Docs[0].Status, run.Docs[0].Executions)
	}
	if got := run.Docs[0].Describe(); !strings.Contains(got, "boom") {
		t.Errorf("the doc outcome hides the handler error: %q", got)
	}
	if got := readDoc(t, path); got != content {
		t.Errorf("a failed doc was rewritten: %q", got)
	}
}

func TestRunContinueAfterError(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.StopAtFirstError = false })
	content := unit("fail now", "expected") + unit("echo after", "after")
	path := writeDoc(t, dir, "fail.txt", content)

	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	doc := run.Docs[0]
	if doc.Status != model.StatusFailure || doc.Errors != 1 || doc.Executions != 2 {
		t.Errorf("doc: status=%s errors=%d executions=%d", doc.Status, doc.Errors, doc.Executions)
	}
	if !strings.Contains(doc.NewDoc, "boom") {
		t.Errorf("the error message is not the console result: %q", doc.NewDoc)
	}
	if got := readDoc(t, path); got != content {
		t.Error("a doc with errors was rewritten")
	}
}

func TestRunFileBlocks(t *testing.T) {
	app, dir := newTestApp(t, nil)
	writeDoc(t, dir, "samples/hello.txt", "hello from disk\n")
	path := writeDoc(t, dir, "file.txt", "<unit>\n<file txt samples/hello.txt>\nstale\n</file>\n</unit>\n")

	if _, err := app.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	want := "<unit>\n<file txt samples/hello.txt>\nhello from disk\n\n</file>\n</unit>\n"
	if got := readDoc(t, path); got != want {
		t.Errorf("doc = %q, want %q", got, want)
	}
}

func TestRunMissingEmbeddedFile(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.StopAtFirstError = false })
	path := writeDoc(t, dir, "file.txt", "<unit>\n<file txt nope.txt>\n</file>\n</unit>\n")

	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	var lookupErr *model.LookupError
	if !errors.As(run.Docs[0].Err, &lookupErr) || len(lookupErr.Tried) != 1 {
		t.Errorf("err = %v", run.Docs[0].Err)
	}
}

func TestRunDryRun(t *testing.T) {
	app, dir := newTestApp(t, func(cfg *cli.Config) { cfg.DryRun = true })
	content := unit("echo one", "old")
	path := writeDoc(t, dir, "dry.txt", content)

	for i := 0; i < 2; i++ {
		run, err := app.Run(context.Background(), path)
		if err != nil {
			t.Fatal(err)
		}
		if run.Executions() != 1 {
			t.Errorf("run %d executions = %d, want 1", i, run.Executions())
		}
		if !strings.Contains(run.Docs[0].NewDoc, "\none\n") {
			t.Errorf("NewDoc = %q", run.Docs[0].NewDoc)
		}
	}
	if got := readDoc(t, path); got != content {
		t.Error("dry run wrote the doc")
	}
}

func TestRunDirectoryAndGlobs(t *testing.T) {
	app, dir := newTestApp(t, nil)
	writeDoc(t, dir, "guide/10-last.txt", unit("echo c", "c"))
	writeDoc(t, dir, "guide/2-second.md", unit("echo b", "b"))
	writeDoc(t, dir, "guide/1-first.txt", unit("echo a", "a"))
	writeDoc(t, dir, "guide/notes.json", "{}")

	run, err := app.Run(context.Background(), "guide")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range run.Docs {
		names = append(names, filepath.Base(d.Path))
	}
	if got := strings.Join(names, ","); got != "1-first.txt,2-second.md,10-last.txt" {
		t.Errorf("docs = %s", got)
	}

	run, err = app.RunGlobs(context.Background(), []string{"guide/*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Docs) != 3 {
		t.Errorf("glob selected %d docs, want 3", len(run.Docs))
	}

	if _, err := app.RunGlobs(context.Background(), []string{"nothing/*"}); err == nil {
		t.Error("expected an error for a glob without match")
	}
}

func TestRunPurgeCache(t *testing.T) {
	app, dir := newTestApp(t, nil)
	path := writeDoc(t, dir, "a.txt", unit("echo a", "a"))
	if _, err := app.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	app.cfg.PurgeCache = true
	run, err := app.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Docs[0].Status != model.StatusSuccess || run.Executions() != 1 {
		t.Errorf("after purge: status=%s executions=%d", run.Docs[0].Status, run.Executions())
	}
}

func TestRunText(t *testing.T) {
	app, _ := newTestApp(t, nil)
	doc, err := app.RunText(context.Background(), "stdin", unit("echo piped", ""))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != model.StatusSuccess || !strings.Contains(doc.NewDoc, "<console>\npiped\n</console>") {
		t.Errorf("status=%s doc=%q", doc.Status, doc.NewDoc)
	}
}

func TestExecuteReadsStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		io.WriteString(w, unit("echo piped", "old"))
		w.Close()
	}()

	var out bytes.Buffer
	app, _ := newTestApp(t, nil)
	app.stdin = r
	app.out = &out
	run, err := app.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Docs) != 1 || out.String() != unit("echo piped", "piped") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	app, dir := newTestApp(t, nil)
	writeDoc(t, dir, "a.txt", unit("echo a", "a"))
	app.cfg.Paths = []string{"a.txt"}
	app.SetProgressCallback(func(Progress) { panic("progress display crashed") })

	_, err := app.Execute(context.Background())
	var detailed *DetailedError
	if !errors.As(err, &detailed) || len(detailed.Stack) == 0 {
		t.Errorf("err = %v, want a DetailedError with a stack", err)
	}
}

func TestWriteEnv(t *testing.T) {
	app, _ := newTestApp(t, func(cfg *cli.Config) { cfg.Name = "ci" })
	var out bytes.Buffer
	if err := app.WriteEnv(&out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[run]", `name = "ci"`, "[derived]", `timeout = "0s"`, `"echo"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("env report misses %s:\n%s", want, out.String())
		}
	}
}

func TestExecuteText(t *testing.T) {
	newDoc, warnings, err := ExecuteText(context.Background(), unit("echo lib", "x\ny"), Config{
		CommandHandlers: map[string]string{"echo": "echo"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(newDoc, "\nlib\n") || len(warnings) != 1 {
		t.Errorf("doc=%q warnings=%v", newDoc, warnings)
	}
}
