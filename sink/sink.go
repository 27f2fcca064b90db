// Package sink defines where emitted protocol envelopes go.
//
// The emitter writes each envelope to a Sink as soon as it is built. Sinks
// decide their own buffering: the NDJSON sink writes straight through, the
// Lode sink batches until Flush.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/msgfmt/types"
)

// Sink receives envelopes in emission order.
type Sink interface {
	// Write accepts one envelope. Implementations must preserve order.
	// Returns error on failure; the caller aborts the run.
	Write(ctx context.Context, env *types.Envelope) error

	// Flush pushes buffered envelopes to the backing store.
	Flush(ctx context.Context) error

	// Close releases any resources held by the sink.
	Close() error
}

// Multi fans each envelope out to several sinks in order.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Write delivers env to every sink, stopping at the first error.
// The error is returned unchanged.
func (m *Multi) Write(ctx context.Context, env *types.Envelope) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink and joins the errors.
func (m *Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins the errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StubSink is a test sink that records writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// Written stores all written envelopes for inspection.
	Written []*types.Envelope
	// Flushes is the number of Flush calls.
	Flushes int
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnWrite, if non-nil, is returned by Write.
	ErrorOnWrite error
	// ErrorOnFlush, if non-nil, is returned by Flush.
	ErrorOnFlush error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{Written: make([]*types.Envelope, 0)}
}

// Write records env.
func (s *StubSink) Write(_ context.Context, env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Written = append(s.Written, env)
	return nil
}

// Flush counts the call.
func (s *StubSink) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnFlush != nil {
		return s.ErrorOnFlush
	}
	s.Flushes++
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// FlushCount returns Flushes under the lock.
func (s *StubSink) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Flushes
}

// Types returns the message type of each written envelope, in order.
func (s *StubSink) Types() []types.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.MessageType, len(s.Written))
	for i, env := range s.Written {
		out[i] = env.Type()
	}
	return out
}

// Verify implementations.
var (
	_ Sink = (*Multi)(nil)
	_ Sink = (*StubSink)(nil)
)
