package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sokinpui/docexec/internal/config"
	"github.com/sokinpui/docexec/model"
)

// Subcommands.
const (
	CommandRun    = "run"
	CommandEnv    = "env"
	CommandResult = "result"
)

// Config holds the effective configuration of an invocation: defaults,
// then docexec.toml, then explicitly set flags.
type Config struct {
	Command string   `toml:"-"`
	Paths   []string `toml:"-"`

	Name                 string            `toml:"name"`
	DryRun               bool              `toml:"dry-run"`
	Cache                bool              `toml:"cache"`
	PurgeCache           bool              `toml:"purge-cache"`
	CaptureStderr        bool              `toml:"capture-stderr"`
	StopAtFirstError     bool              `toml:"stop-at-first-error"`
	StopAtFirstWarning   bool              `toml:"stop-at-first-warning"`
	ContentShrinkWarning bool              `toml:"content-shrink-warning"`
	PersistOnWarning     bool              `toml:"persist-on-warning"`
	SearchPaths          []string          `toml:"search-paths"`
	DocPath              string            `toml:"doc-path"`
	ResumeFrom           string            `toml:"resume-from,omitempty"`
	Extensions           []string          `toml:"extensions"`
	Timeout              time.Duration     `toml:"-"`
	Shell                string            `toml:"shell,omitempty"`
	CommandPaths         map[string]string `toml:"command-paths,omitempty"`
	CommandHandlers      map[string]string `toml:"command-handlers,omitempty"`
	CommandUseShell      map[string]bool   `toml:"command-use-shell,omitempty"`

	LogLevel    string `toml:"log-level"`
	LogFile     string `toml:"log-file,omitempty"`
	LogJournal  bool   `toml:"log-journal"`
	NoAnimation bool   `toml:"-"`
	Nvim        bool   `toml:"nvim"`
	Copy        bool   `toml:"-"`
	ConfigFile  string `toml:"config-file,omitempty"`

	// CacheDir and DataDir override the user cache and data directories.
	CacheDir string `toml:"cache-dir,omitempty"`
	DataDir  string `toml:"data-dir,omitempty"`

	// Handlers registers in-process command handlers. Library use only.
	Handlers map[string]model.Handler `toml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Command:              CommandRun,
		Name:                 "default",
		Cache:                true,
		CaptureStderr:        true,
		StopAtFirstError:     true,
		ContentShrinkWarning: true,
		PersistOnWarning:     true,
		Extensions:           []string{"txt", "md"},
		LogLevel:             "info",
	}
}

// ParseFlags parses the command line (without the program name). The first
// argument may name a subcommand; run is the default.
func ParseFlags(args []string) (*Config, error) {
	cfg := Default()
	if len(args) > 0 {
		switch args[0] {
		case CommandRun, CommandEnv, CommandResult:
			cfg.Command = args[0]
			args = args[1:]
		}
	}

	flags := pflag.NewFlagSet("docexec "+cfg.Command, pflag.ContinueOnError)
	var noConfig bool
	flags.StringVarP(&cfg.Name, "name", "n", cfg.Name, "Name of the run, used as the cache and result namespace.")
	flags.StringVar(&cfg.ConfigFile, "config", "", "Path of the docexec.toml file (default: searched from the working directory up).")
	flags.BoolVar(&noConfig, "no-config", false, "Do not load any docexec.toml file.")
	flags.StringVar(&cfg.CacheDir, "cache-dir", "", "Root of the cache namespaces (default: user cache directory).")
	flags.StringVar(&cfg.DataDir, "data-dir", "", "Root of the run results (default: user data directory).")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error.")
	flags.StringVar(&cfg.LogFile, "log-file", "", "Also write JSON logs to this file.")
	flags.BoolVar(&cfg.LogJournal, "log-journal", false, "Also send logs to the systemd journal.")

	var commandPaths, commandHandlers, commandUseShell map[string]string
	var noCache, noCaptureStderr, noStopAtFirstError, noShrinkWarning, noPersistOnWarning bool
	if cfg.Command == CommandRun || cfg.Command == CommandEnv {
		flags.BoolVar(&cfg.DryRun, "dry-run", false, "Execute the documents without rewriting them.")
		flags.BoolVar(&noCache, "no-cache", false, "Execute every unit, ignoring the cache.")
		flags.BoolVar(&cfg.PurgeCache, "purge-cache", false, "Purge the cache namespace before the run.")
		flags.BoolVar(&noCaptureStderr, "no-capture-stderr", false, "Do not capture the standard error of the executions.")
		flags.BoolVar(&noStopAtFirstError, "no-stop-at-first-error", false, "Continue with the next unit and document after an error.")
		flags.BoolVar(&cfg.StopAtFirstWarning, "stop-at-first-warning", false, "Abort the run at the first document with warnings.")
		flags.BoolVar(&noShrinkWarning, "no-content-shrink-warning", false, "Do not warn when an output has fewer lines than the expected one.")
		flags.BoolVar(&noPersistOnWarning, "no-persist-on-warning", false, "Do not rewrite nor cache a document with warnings.")
		flags.StringSliceVarP(&cfg.SearchPaths, "search-path", "s", nil, "Directories where the files of the file blocks are searched, in order (default: current directory).")
		flags.StringVarP(&cfg.DocPath, "doc-path", "d", "", "Directory against which the document globs are resolved (default: current directory).")
		flags.StringVar(&cfg.ResumeFrom, "resume-from", "", "Skip the documents sorting before this path.")
		flags.StringSliceVarP(&cfg.Extensions, "extension", "e", cfg.Extensions, "Document extensions (e.g., 'txt', 'md').")
		flags.DurationVar(&cfg.Timeout, "timeout", 0, "Timeout of a single execution (e.g., '30s'). Zero disables it.")
		flags.StringVar(&cfg.Shell, "shell", "", "POSIX shell binary (default: bash, or sh).")
		flags.StringToStringVar(&commandPaths, "command-path", nil, "Absolute path of a command (command=path).")
		flags.StringToStringVar(&commandHandlers, "command-handler", nil, "Run a command with an in-process handler (command=handler).")
		flags.StringToStringVar(&commandUseShell, "command-use-shell", nil, "Run a command through the shell binary or not (command=true|false).")
		flags.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
		flags.BoolVar(&cfg.Nvim, "nvim", false, "Write the documents through the running Neovim instance.")
		flags.BoolVar(&cfg.Copy, "copy", false, "Copy the rewritten document to the clipboard (stdin or clipboard input only).")
	}

	flags.Usage = func() {
		fmt.Println("Usage: docexec [run|env|result] [flags] [doc-globs...]")
		fmt.Println("\nExecute the code units of documentation files and rewrite their console blocks.")
		fmt.Println("\nExample: docexec run -s samples 'docs/**'")
		fmt.Println("\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.Paths = flags.Args()

	var file *config.File
	var err error
	switch {
	case noConfig:
	case cfg.ConfigFile != "":
		file, err = config.Load(cfg.ConfigFile)
	default:
		var wd string
		if wd, err = os.Getwd(); err == nil {
			file, err = config.FindAndLoad(wd)
		}
	}
	if err != nil {
		return nil, err
	}
	if file != nil {
		cfg.ConfigFile = file.Path
		if err := ApplyFile(cfg, file, flags.Changed); err != nil {
			return nil, err
		}
	}

	// Negative flags win over the file when set.
	if noCache {
		cfg.Cache = false
	}
	if noCaptureStderr {
		cfg.CaptureStderr = false
	}
	if noStopAtFirstError {
		cfg.StopAtFirstError = false
	}
	if noShrinkWarning {
		cfg.ContentShrinkWarning = false
	}
	if noPersistOnWarning {
		cfg.PersistOnWarning = false
	}

	if err := mergeCommands(cfg, commandPaths, commandHandlers, commandUseShell); err != nil {
		return nil, err
	}
	cfg.Extensions = NormalizeExtensions(cfg.Extensions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile copies the values of a docexec.toml file into cfg, except for
// the flags reported as changed.
func ApplyFile(cfg *Config, f *config.File, changed func(name string) bool) error {
	run := f.Run
	if run.Name != "" && !changed("name") {
		cfg.Name = run.Name
	}
	if len(run.SearchPaths) > 0 && !changed("search-path") {
		cfg.SearchPaths = make([]string, len(run.SearchPaths))
		for i, p := range run.SearchPaths {
			cfg.SearchPaths[i] = f.Resolve(p)
		}
	}
	if run.DocPath != "" && !changed("doc-path") {
		cfg.DocPath = f.Resolve(run.DocPath)
	}
	if len(run.Extensions) > 0 && !changed("extension") {
		cfg.Extensions = run.Extensions
	}
	if run.Timeout != "" && !changed("timeout") {
		d, err := f.Timeout()
		if err != nil {
			return err
		}
		cfg.Timeout = d
	}
	if run.Shell != "" && !changed("shell") {
		cfg.Shell = run.Shell
	}

	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&cfg.CaptureStderr, run.CaptureStderr)
	setBool(&cfg.Cache, run.Cache)
	setBool(&cfg.StopAtFirstError, run.StopAtFirstError)
	if !changed("stop-at-first-warning") {
		setBool(&cfg.StopAtFirstWarning, run.StopAtFirstWarning)
	}
	setBool(&cfg.ContentShrinkWarning, run.ContentShrinkWarning)
	setBool(&cfg.PersistOnWarning, run.PersistOnWarning)

	for name, c := range f.Commands {
		if c.Path != "" {
			setMap(&cfg.CommandPaths, name, f.Resolve(c.Path))
		}
		if c.Handler != "" {
			setMap(&cfg.CommandHandlers, name, c.Handler)
		}
		if c.UseShell != nil {
			if cfg.CommandUseShell == nil {
				cfg.CommandUseShell = make(map[string]bool)
			}
			cfg.CommandUseShell[name] = *c.UseShell
		}
	}
	return nil
}

func setMap(m *map[string]string, key, value string) {
	if *m == nil {
		*m = make(map[string]string)
	}
	(*m)[key] = value
}

func mergeCommands(cfg *Config, paths, handlers, useShell map[string]string) error {
	for name, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path for the command %s: %w", name, err)
		}
		setMap(&cfg.CommandPaths, name, abs)
	}
	for name, h := range handlers {
		setMap(&cfg.CommandHandlers, name, h)
	}
	for name, v := range useShell {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid --command-use-shell value for %s: %q is not a boolean", name, v)
		}
		if cfg.CommandUseShell == nil {
			cfg.CommandUseShell = make(map[string]bool)
		}
		cfg.CommandUseShell[name] = b
	}
	return nil
}

// Validate checks the values that cannot be checked by the flag parser.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Name == "" || strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("invalid run name %q", c.Name)
	}
	if c.Timeout < 0 {
		return errors.New("the timeout cannot be negative")
	}
	if c.Copy && len(c.Paths) > 0 {
		return errors.New("--copy only applies when the document is read from stdin or the clipboard")
	}
	return nil
}

// CommandNames returns every command name with an override, sorted.
func (c *Config) CommandNames() []string {
	seen := make(map[string]bool)
	for name := range c.CommandPaths {
		seen[name] = true
	}
	for name := range c.CommandHandlers {
		seen[name] = true
	}
	for name := range c.CommandUseShell {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeExtensions strips the leading dots of document extensions.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
