package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/sokinpui/docexec/model"
)

var (
	packageClauseRegex = regexp.MustCompile(`(?m)^\s*package\s+\w+`)
	mainFuncRegex      = regexp.MustCompile(`(?m)^func\s+main\s*\(\s*\)`)
)

// goSource turns a snippet into a main package. A snippet without a package
// clause becomes the body of main, unless it declares main itself.
func goSource(snippet string) []byte {
	switch {
	case packageClauseRegex.MatchString(snippet):
		return []byte(snippet)
	case mainFuncRegex.MatchString(snippet):
		return []byte("package main\n\n" + snippet)
	default:
		return []byte("package main\n\nfunc main() {\n" + snippet + "\n}\n")
	}
}

// runGo compiles the snippet with missing imports added, then runs the
// binary as a subprocess.
func (d *Dispatcher) runGo(ctx context.Context, unit *model.Unit) (string, error) {
	dir, err := os.MkdirTemp("", "docexec-go-")
	if err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "main.go")
	src, err := imports.Process(file, goSource(unit.CodeText()), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return "", &model.ExecutionError{
			Command:    "go build",
			ExitStatus: -1,
			Output:     err.Error(),
			Err:        fmt.Errorf("compile failure: %w", err),
		}
	}
	if err := os.WriteFile(file, src, 0644); err != nil {
		return "", fmt.Errorf("failed to write snippet: %w", err)
	}

	env := childEnv(unit.Env)
	bin := filepath.Join(dir, "snippet")
	build := []string{d.cfg.GoBinary, "build", "-o", bin, "main.go"}
	if out, err := d.runProcess(ctx, build, env, dir); err != nil {
		var execErr *model.ExecutionError
		if errors.As(err, &execErr) && execErr.Err == nil {
			execErr.Command = "go build"
			execErr.Err = fmt.Errorf("compile failure: %s", firstLine(execErr.Output))
		}
		return out, err
	}

	return d.runProcess(ctx, []string{bin}, env, d.cfg.WorkDir)
}

func firstLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		// go build prints the package name first.
		if strings.HasPrefix(line, "#") {
			continue
		}
		return strings.TrimSpace(line)
	}
	return "unknown error"
}
