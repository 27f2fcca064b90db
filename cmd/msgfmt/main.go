// Package main provides the msgfmt CLI entrypoint.
//
// Usage:
//
//	msgfmt <command> [options]
//	msgfmt format [options] [-- engine command...]
//
// Exit codes:
//   - 0: success
//   - 1: usage or configuration error
//   - 2: stream error, or the run was canceled
//   - 3: emit failure (output write or flush)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/cli/cmd"
	"github.com/pithecene-io/msgfmt/runtime"
	"github.com/pithecene-io/msgfmt/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(runtime.ExitCodeUsage)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "msgfmt",
		Usage:          "Format test-run events as protocol messages",
		Version:        fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.FormatCommand(),
			cmd.EncodeCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand("", commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports err to w and returns the process exit code.
func exitCode(err error, w io.Writer) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() may read "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return runtime.ExitCodeUsage
}
