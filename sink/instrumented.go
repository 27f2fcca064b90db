package sink

import (
	"context"

	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/types"
)

// InstrumentedSink wraps a Sink and records write metrics.
// Each Write call increments sink_write_success or sink_write_failure on
// the collector.
type InstrumentedSink struct {
	inner     Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// Write delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) Write(ctx context.Context, env *types.Envelope) error {
	err := s.inner.Write(ctx, env)
	if err != nil {
		s.collector.IncSinkWriteFailure()
	} else {
		s.collector.IncSinkWriteSuccess()
	}
	return err
}

// Flush delegates to the inner sink.
func (s *InstrumentedSink) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements Sink.
var _ Sink = (*InstrumentedSink)(nil)
