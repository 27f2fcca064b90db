package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/cli/reader"
	"github.com/pithecene-io/msgfmt/cli/render"
	"github.com/pithecene-io/msgfmt/cli/tui"
	"github.com/pithecene-io/msgfmt/runtime"
)

// InspectCommand returns the inspect command.
// Inspect rebuilds the execution timeline of one run from emitted messages.
func InspectCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "NDJSON message file (\"-\" for stdin); ignored with --storage-backend"},
		&cli.StringFlag{Name: "run-id", Usage: "Run ID (required with --storage-backend)"},
	)
	flags = append(flags, StorageReadFlags()...)

	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show the test case timeline of a run",
		Flags:  flags,
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeUsage)
	}
	src, err := openReader(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeUsage)
	}

	tl, err := src.Timeline(c.Context, c.String("run-id"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect failed: %v", err), runtime.ExitCodeStream)
	}

	if c.Bool("tui") {
		if !isStderrTTY() {
			return cli.Exit("--tui requires a terminal", runtime.ExitCodeUsage)
		}
		return r.RenderTUI(tui.ViewInspectRun, tl)
	}
	return r.Render(tl)
}

// openReader picks Lode storage when a backend is set, else the --input file.
func openReader(c *cli.Context) (reader.Reader, error) {
	s := storageFromFlags(c)
	if !s.enabled() {
		if s.path != "" {
			return nil, errors.New("--storage-path requires --storage-backend")
		}
		input := c.String("input")
		if input == "" {
			return nil, errors.New("either --input or --storage-backend is required")
		}
		return reader.NewFileReader(input), nil
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	ds, err := buildReadDataset(c.Context, s)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	return reader.NewLodeReader(ds), nil
}
