package sink

import (
	"context"
	"io"

	"github.com/pithecene-io/msgfmt/types"
)

// NDJSONSink writes one JSON envelope per line to an io.Writer.
//
// Each envelope is written with a single Write call, so concurrent readers
// of a pipe never observe a partial line from this sink.
type NDJSONSink struct {
	w     io.Writer
	owned io.Closer
	lines int64
}

// NewNDJSONSink writes to w. Close does not close w.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w}
}

// NewOwnedNDJSONSink writes to wc and closes it on Close.
func NewOwnedNDJSONSink(wc io.WriteCloser) *NDJSONSink {
	return &NDJSONSink{w: wc, owned: wc}
}

// Write serializes env and writes it followed by a newline.
func (s *NDJSONSink) Write(_ context.Context, env *types.Envelope) error {
	if err := env.WriteNDJSON(s.w); err != nil {
		return err
	}
	s.lines++
	return nil
}

// Flush flushes the writer when it buffers (e.g. *bufio.Writer).
func (s *NDJSONSink) Flush(_ context.Context) error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and, for owned writers, closes the writer.
func (s *NDJSONSink) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	if s.owned != nil {
		return s.owned.Close()
	}
	return nil
}

// Lines returns the number of envelopes written.
func (s *NDJSONSink) Lines() int64 {
	return s.lines
}

// Verify NDJSONSink implements Sink.
var _ Sink = (*NDJSONSink)(nil)
