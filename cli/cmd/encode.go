package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/iox"
	"github.com/pithecene-io/msgfmt/ipc"
	"github.com/pithecene-io/msgfmt/runtime"
)

// EncodeCommand returns the encode command.
// Encode turns a JSON-lines event script into the binary frame stream that
// format consumes, for fixtures and engine shims.
func EncodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Encode a JSON-lines event script into a frame stream",
		Description: "Each input line is one frame object, e.g.\n" +
			"  {\"type\":\"test_case_started\",\"test_case\":{\"id\":\"tc-1\",\"steps\":[]}}\n" +
			"A zero or missing seq is assigned from the line position.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Event script path (\"-\" for stdin)", Value: iox.Stdio},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Frame stream path (\"-\" for stdout)", Value: iox.Stdio},
		},
		Action: encodeAction,
	}
}

func encodeAction(c *cli.Context) error {
	in, err := openInput(c, c.String("input"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open input: %v", err), runtime.ExitCodeUsage)
	}
	defer iox.DiscardClose(in)

	out, err := openOutput(c, c.String("output"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open output: %v", err), runtime.ExitCodeUsage)
	}

	n, err := encodeFrames(in, out)
	closeErr := out.Close()
	if err != nil {
		return cli.Exit(fmt.Sprintf("encode failed after %d frames: %v", n, err), runtime.ExitCodeStream)
	}
	if closeErr != nil {
		return cli.Exit(fmt.Sprintf("failed to close output: %v", closeErr), runtime.ExitCodeEmit)
	}
	return nil
}

// encodeFrames copies JSON frames from r to w as length-prefixed msgpack
// frames and returns how many were written.
func encodeFrames(r io.Reader, w io.Writer) (int64, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	enc := ipc.NewFrameEncoder(w)

	var n int64
	for {
		var f ipc.Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("frame %d: %w", n+1, err)
		}
		if f.Seq == 0 {
			f.Seq = n + 1
		}
		if err := f.Validate(); err != nil {
			return n, err
		}
		if err := enc.Encode(&f); err != nil {
			return n, err
		}
		n++
	}
}
