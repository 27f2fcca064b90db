package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/cli/render"
	"github.com/pithecene-io/msgfmt/cli/tui"
	"github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/runtime"
)

// StatsCommand returns the stats command.
// Stats reads the metrics snapshot a run persisted to Lode.
func StatsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: most recent run)"},
	)
	flags = append(flags, StorageReadFlags()...)

	return &cli.Command{
		Name:   "stats",
		Usage:  "Show the stored metrics of a run",
		Flags:  flags,
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeUsage)
	}

	s := storageFromFlags(c)
	if !s.enabled() {
		return cli.Exit("stats requires --storage-backend and --storage-path", runtime.ExitCodeUsage)
	}
	src, err := openReader(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeUsage)
	}

	snap, err := src.Metrics(c.Context, c.String("run-id"))
	switch {
	case errors.Is(err, lode.ErrNoMetricsFound):
		return cli.Exit("no metrics found in storage", runtime.ExitCodeStream)
	case err != nil:
		return cli.Exit(fmt.Sprintf("stats failed: %v", err), runtime.ExitCodeStream)
	}

	if c.Bool("tui") {
		if !isStderrTTY() {
			return cli.Exit("--tui requires a terminal", runtime.ExitCodeUsage)
		}
		return r.RenderTUI(tui.ViewStatsRun, snap)
	}
	return r.Render(snap)
}
