package docexec

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/BurntSushi/toml"

	"github.com/sokinpui/docexec/cli"
)

type envReport struct {
	Run     *cli.Config `toml:"run"`
	Derived derived     `toml:"derived"`
}

type derived struct {
	Timeout    string   `toml:"timeout"`
	DocBase    string   `toml:"doc-base"`
	SearchDirs []string `toml:"search-dirs"`
	CacheDir   string   `toml:"cache-dir"`
	ResultsDir string   `toml:"results-dir"`
	Handlers   []string `toml:"handlers"`
}

// WriteEnv prints the effective configuration and the derived directories
// as TOML.
func (a *App) WriteEnv(w io.Writer) error {
	report := envReport{
		Run: a.cfg,
		Derived: derived{
			Timeout:    a.cfg.Timeout.String(),
			DocBase:    a.docBase,
			SearchDirs: a.resolver.Dirs(),
			ResultsDir: a.results.Dir,
			Handlers:   a.dispatcher.HandlerNames(),
		},
	}
	if a.cache != nil {
		report.Derived.CacheDir = a.cache.Dir()
	}
	if err := toml.NewEncoder(w).Encode(report); err != nil {
		return fmt.Errorf("failed to encode the environment: %w", err)
	}
	return nil
}

// WriteResults lists the stored result files, newest first.
func (a *App) WriteResults(w io.Writer) error {
	files, err := a.results.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		_, err := fmt.Fprintf(w, "No results in %s\n", a.results.Dir)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\n", f.Name, f.Size)
	}
	return tw.Flush()
}
