package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of a test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get current working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})
}

func TestParseFlagsDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := ParseFlags([]string{"docs/**"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.Command != CommandRun {
		t.Errorf("command = %s, want run", cfg.Command)
	}
	if !reflect.DeepEqual(cfg.Paths, []string{"docs/**"}) {
		t.Errorf("paths = %v", cfg.Paths)
	}
	if !cfg.Cache || !cfg.CaptureStderr || !cfg.StopAtFirstError || !cfg.ContentShrinkWarning || !cfg.PersistOnWarning {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StopAtFirstWarning || cfg.DryRun {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Extensions, []string{"txt", "md"}) {
		t.Errorf("extensions = %v", cfg.Extensions)
	}
}

func TestParseFlagsRun(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := ParseFlags([]string{
		"run", "--no-cache", "--no-stop-at-first-error", "--dry-run",
		"-s", "a,b", "-e", ".md", "--timeout", "5s",
		"--command-path", "ls=/bin/ls",
		"--command-handler", "echo=echo",
		"--command-use-shell", "ls=false",
		"one.txt", "two.txt",
	})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.Cache || cfg.StopAtFirstError || !cfg.DryRun {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.SearchPaths, []string{"a", "b"}) {
		t.Errorf("search paths = %v", cfg.SearchPaths)
	}
	if !reflect.DeepEqual(cfg.Extensions, []string{"md"}) {
		t.Errorf("extensions = %v", cfg.Extensions)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Timeout)
	}
	if cfg.CommandPaths["ls"] != "/bin/ls" || cfg.CommandHandlers["echo"] != "echo" {
		t.Errorf("command overrides = %v %v", cfg.CommandPaths, cfg.CommandHandlers)
	}
	if v, ok := cfg.CommandUseShell["ls"]; !ok || v {
		t.Errorf("use shell = %v", cfg.CommandUseShell)
	}
	if !reflect.DeepEqual(cfg.CommandNames(), []string{"echo", "ls"}) {
		t.Errorf("command names = %v", cfg.CommandNames())
	}
	if len(cfg.Paths) != 2 {
		t.Errorf("paths = %v", cfg.Paths)
	}
}

func TestParseFlagsSubcommands(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := ParseFlags([]string{"result", "-n", "nightly"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.Command != CommandResult || cfg.Name != "nightly" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := ParseFlags([]string{"result", "--dry-run"}); err == nil {
		t.Error("run flags must not be accepted by result")
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	chdir(t, t.TempDir())

	tests := [][]string{
		{"--command-use-shell", "ls=maybe"},
		{"--log-level", "loud"},
		{"--name", "a/b"},
		{"--copy", "doc.txt"},
	}
	for _, args := range tests {
		if _, err := ParseFlags(args); err == nil {
			t.Errorf("ParseFlags(%v) should fail", args)
		}
	}
}

func TestParseFlagsConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
[run]
name = "manual"
search-paths = ["samples"]
cache = false
stop-at-first-warning = true
timeout = "1m"

[commands.echo]
handler = "echo"
`
	if err := os.WriteFile(filepath.Join(dir, "docexec.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseFlags([]string{"--name", "flag-wins"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.Name != "flag-wins" {
		t.Errorf("name = %s, the flag must win over the file", cfg.Name)
	}
	if cfg.Cache {
		t.Error("cache should be disabled by the file")
	}
	if !cfg.StopAtFirstWarning {
		t.Error("stop-at-first-warning should be set by the file")
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("timeout = %s", cfg.Timeout)
	}
	if got, want := cfg.SearchPaths, []string{filepath.Join(dir, "samples")}; !reflect.DeepEqual(got, want) {
		t.Errorf("search paths = %v, want %v", got, want)
	}
	if cfg.CommandHandlers["echo"] != "echo" {
		t.Errorf("handlers = %v", cfg.CommandHandlers)
	}

	cfg, err = ParseFlags([]string{"--no-config"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Cache || cfg.Name != "default" {
		t.Errorf("--no-config must ignore the file: %+v", cfg)
	}
}
