package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sokinpui/docexec/internal/fs"
	"github.com/sokinpui/docexec/model"
)

// Family groups the languages that are executed the same way.
type Family string

const (
	FamilyPosix    Family = "posix"
	FamilyDos      Family = "dos"
	FamilyGo       Family = "go"
	FamilyStarlark Family = "starlark"
)

var defaultLanguages = map[string]Family{
	"bash":     FamilyPosix,
	"sh":       FamilyPosix,
	"shell":    FamilyPosix,
	"dos":      FamilyDos,
	"cmd":      FamilyDos,
	"bat":      FamilyDos,
	"go":       FamilyGo,
	"golang":   FamilyGo,
	"starlark": FamilyStarlark,
	"star":     FamilyStarlark,
}

// CommandOverride changes how a shell command name is executed.
type CommandOverride struct {
	// Path is the absolute path of the binary invoked instead of the name.
	Path string
	// Handler is the name of a registered in-process handler.
	Handler string
	// UseShell runs the rest of the unit through the shell binary. Nil means
	// true, unless Path or Handler is set.
	UseShell *bool
}

// Config configures a Dispatcher.
type Config struct {
	CaptureStderr bool
	// Timeout bounds every single invocation. Zero disables it.
	Timeout time.Duration
	// Shell is the POSIX shell binary. Defaults to bash, or sh when bash
	// is not installed.
	Shell string
	// GoBinary is the go command used to build Go snippets.
	GoBinary string
	// WorkDir is the working directory of the executions.
	WorkDir string
	// SearchDirs resolve the relative paths given to the built-in cat.
	SearchDirs []string
	Commands   map[string]CommandOverride
	// Handlers registers in-process handlers next to the built-in ones.
	Handlers map[string]model.Handler
	// Languages maps extra language tags to a family.
	Languages map[string]Family
	Logger    *slog.Logger
}

// Dispatcher executes the code of a unit according to its language.
type Dispatcher struct {
	cfg       Config
	languages map[string]Family
	handlers  map[string]model.Handler
	resolver  *fs.PathResolver
	slot      *Slot
	logger    *slog.Logger
}

// New validates the configuration and creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:       cfg,
		languages: make(map[string]Family, len(defaultLanguages)+len(cfg.Languages)),
		handlers:  make(map[string]model.Handler),
		slot:      &Slot{},
		logger:    cfg.Logger,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	for lang, family := range defaultLanguages {
		d.languages[lang] = family
	}
	for lang, family := range cfg.Languages {
		switch family {
		case FamilyPosix, FamilyDos, FamilyGo, FamilyStarlark:
		default:
			return nil, fmt.Errorf("language %s: unknown family %q", lang, family)
		}
		d.languages[strings.ToLower(lang)] = family
	}

	searchDirs := cfg.SearchDirs
	if len(searchDirs) == 0 && cfg.WorkDir != "" {
		searchDirs = []string{cfg.WorkDir}
	}
	d.resolver = fs.NewPathResolver(searchDirs)

	d.handlers["echo"] = Echo
	d.handlers["cat"] = d.cat
	for name, h := range cfg.Handlers {
		if h == nil {
			return nil, fmt.Errorf("handler %s is nil", name)
		}
		d.handlers[name] = h
	}

	if d.cfg.GoBinary == "" {
		d.cfg.GoBinary = "go"
	}
	if d.cfg.WorkDir != "" {
		abs, err := filepath.Abs(d.cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
		d.cfg.WorkDir = abs
	}

	if err := d.validateCommands(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) validateCommands() error {
	names := make([]string, 0, len(d.cfg.Commands))
	for name := range d.cfg.Commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o := d.cfg.Commands[name]
		shell := o.UseShell != nil && *o.UseShell
		if o.Handler != "" {
			if o.Path != "" {
				return fmt.Errorf("conflict: the command %s was set to use the handler %s and the path %s", name, o.Handler, o.Path)
			}
			if shell {
				return fmt.Errorf("conflict: the command %s was set to use the handler %s and to be executed via the shell binary", name, o.Handler)
			}
			if _, ok := d.handlers[o.Handler]; !ok {
				return fmt.Errorf("the command %s uses the unknown handler %s (known: %s)", name, o.Handler, strings.Join(d.HandlerNames(), ", "))
			}
		}
		if o.Path != "" {
			if !filepath.IsAbs(o.Path) {
				return fmt.Errorf("the path of the command %s must be absolute, got %s", name, o.Path)
			}
			if shell {
				return fmt.Errorf("conflict: the command %s was set to use the path %s and to be executed via the shell binary", name, o.Path)
			}
		}
	}
	return nil
}

// HandlerNames returns the registered handler names, sorted.
func (d *Dispatcher) HandlerNames() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Family returns the family of a language tag.
func (d *Dispatcher) Family(language string) (Family, bool) {
	f, ok := d.languages[strings.ToLower(language)]
	return f, ok
}

// Run executes the code of unit and returns its captured output. Failures
// are reported as *model.ExecutionError.
func (d *Dispatcher) Run(ctx context.Context, unit *model.Unit) (string, error) {
	lang := unit.Language()
	family, ok := d.Family(lang)
	if !ok {
		return "", &model.ExecutionError{
			Command:    lang,
			ExitStatus: -1,
			Err:        fmt.Errorf("language (%s) not yet implemented", lang),
		}
	}

	d.logger.DebugContext(ctx, "executing unit", "index", unit.Index, "language", lang, "family", family)

	switch family {
	case FamilyPosix:
		return d.runShell(ctx, unit, posixDialect)
	case FamilyDos:
		return d.runShell(ctx, unit, dosDialect)
	case FamilyGo:
		return d.runGo(ctx, unit)
	case FamilyStarlark:
		return d.runStarlark(ctx, unit)
	}
	return "", fmt.Errorf("internal error: unhandled family %s", family)
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// lookupEnv resolves a variable in the unit environment, then in the host one.
func lookupEnv(unitEnv map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if v, ok := unitEnv[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	}
}

// childEnv returns the host environment overlaid with the unit environment.
func childEnv(unitEnv map[string]string) []string {
	env := os.Environ()
	if len(unitEnv) == 0 {
		return env
	}
	names := make([]string, 0, len(unitEnv))
	for name := range unitEnv {
		names = append(names, name)
	}
	sort.Strings(names)

	overridden := make(map[string]bool, len(unitEnv))
	for _, name := range names {
		overridden[name] = true
	}
	merged := make([]string, 0, len(env)+len(unitEnv))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if !overridden[name] {
			merged = append(merged, kv)
		}
	}
	for _, name := range names {
		merged = append(merged, name+"="+unitEnv[name])
	}
	return merged
}
