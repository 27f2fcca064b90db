package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/ipc"
	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/metrics"
)

// IngestionError classifies ingestion errors for outcome determination.
type IngestionError struct {
	// Kind indicates whether the stream, the emitter, or the caller stopped the run.
	Kind IngestionErrorKind
	// Seq is the sequence number of the offending frame, 0 if none was read.
	Seq int64
	// Err is the underlying error.
	Err error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorStream indicates a framing, decode, or sequencing error.
	IngestionErrorStream IngestionErrorKind = iota
	// IngestionErrorEmit indicates a handler failure (correlation, resolver, sink).
	IngestionErrorEmit
	// IngestionErrorCanceled indicates context cancellation.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return e.Err.Error()
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func ingestionKind(err error) (IngestionErrorKind, bool) {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind, true
	}
	return 0, false
}

// IsEmitError returns true if the error is a handler failure.
func IsEmitError(err error) bool {
	kind, ok := ingestionKind(err)
	return ok && kind == IngestionErrorEmit
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	kind, ok := ingestionKind(err)
	return ok && kind == IngestionErrorCanceled
}

// IsStreamError returns true if the error is a stream/frame error.
func IsStreamError(err error) bool {
	kind, ok := ingestionKind(err)
	return ok && kind == IngestionErrorStream
}

// IngestionEngine reads frames and publishes the events they carry.
//
//   - Frames are read and published in order, one at a time
//   - Sequence numbers must be strictly monotonic (1, 2, 3...)
//   - Invalid framing is fatal (no resync)
//   - The first handler error terminates the run, unchanged
type IngestionEngine struct {
	decoder    *ipc.FrameDecoder
	bus        *event.Bus
	logger     *log.Logger
	collector  *metrics.Collector
	currentSeq int64
	counts     map[event.Kind]int64
}

// NewIngestionEngine creates a new ingestion engine.
func NewIngestionEngine(
	reader io.Reader,
	bus *event.Bus,
	logger *log.Logger,
	collector *metrics.Collector,
) *IngestionEngine {
	if logger == nil {
		logger = log.Nop()
	}
	return &IngestionEngine{
		decoder:   ipc.NewFrameDecoder(reader),
		bus:       bus,
		logger:    logger,
		collector: collector,
		counts:    make(map[event.Kind]int64),
	}
}

// Run runs the ingestion loop until EOF or the first error.
// Returns:
//   - nil: stream ended cleanly (EOF)
//   - *IngestionError with Kind=IngestionErrorStream: frame/stream error
//   - *IngestionError with Kind=IngestionErrorEmit: handler failure
//   - *IngestionError with Kind=IngestionErrorCanceled: context canceled
func (e *IngestionEngine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestionError{
				Kind: IngestionErrorCanceled,
				Seq:  e.currentSeq,
				Err:  ctx.Err(),
			}
		default:
		}

		frame, err := e.decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return e.frameError(err)
		}

		if err := e.processFrame(ctx, frame); err != nil {
			return err
		}
	}
}

func (e *IngestionEngine) frameError(err error) error {
	e.logger.Error("frame error", map[string]any{
		"error":    err.Error(),
		"last_seq": e.currentSeq,
		"fatal":    ipc.IsFatalFrameError(err),
	})
	e.collector.IncFrameDecodeErrors()
	return &IngestionError{
		Kind: IngestionErrorStream,
		Seq:  e.currentSeq + 1,
		Err:  fmt.Errorf("frame error: %w", err),
	}
}

// processFrame validates ordering and publishes a single frame.
func (e *IngestionEngine) processFrame(ctx context.Context, frame *ipc.Frame) error {
	expectedSeq := e.currentSeq + 1
	if frame.Seq != expectedSeq {
		e.logger.Error("sequence violation", map[string]any{
			"expected": expectedSeq,
			"got":      frame.Seq,
			"type":     frame.Type,
		})
		return &IngestionError{
			Kind: IngestionErrorStream,
			Seq:  frame.Seq,
			Err:  fmt.Errorf("sequence violation: expected %d, got %d", expectedSeq, frame.Seq),
		}
	}
	e.currentSeq = frame.Seq

	evt, err := frame.Event()
	if err != nil {
		return e.frameError(err)
	}

	e.collector.IncEventReceived(string(evt.Kind()))
	e.counts[evt.Kind()]++

	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Error("event handling failed", map[string]any{
			"type":  frame.Type,
			"seq":   frame.Seq,
			"error": err.Error(),
		})
		return &IngestionError{
			Kind: IngestionErrorEmit,
			Seq:  frame.Seq,
			Err:  err,
		}
	}
	return nil
}

// CurrentSeq returns the sequence number of the last accepted frame.
func (e *IngestionEngine) CurrentSeq() int64 {
	return e.currentSeq
}

// Counts returns the number of accepted frames per event kind.
func (e *IngestionEngine) Counts() map[event.Kind]int64 {
	out := make(map[event.Kind]int64, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}
