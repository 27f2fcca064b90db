package sink

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/types"
)

// FlushTrigger identifies what caused a flush of an IntervalSink.
type FlushTrigger string

const (
	// FlushTriggerInterval is a timer flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination is an explicit Flush or Close.
	FlushTriggerTermination FlushTrigger = "termination"
)

// IntervalSink flushes a buffering sink on a fixed interval, so a long run
// reaches storage before it ends.
//
// Writes pass straight through. A timer goroutine flushes the inner sink
// when anything was written since the last flush. Interval flush errors are
// logged only: the inner sink keeps a failed batch and the next flush retries.
type IntervalSink struct {
	inner    Sink
	interval time.Duration
	logger   *log.Logger

	mu         sync.Mutex
	dirty      bool
	byInterval int64
	byTerm     int64
	stopped    bool

	// flushMu serializes inner flushes between the timer and callers.
	flushMu sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
}

// NewIntervalSink wraps inner. A non-positive interval returns inner unchanged.
func NewIntervalSink(inner Sink, interval time.Duration, logger *log.Logger) Sink {
	if interval <= 0 {
		return inner
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &IntervalSink{
		inner:    inner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Write implements Sink.
func (s *IntervalSink) Write(ctx context.Context, env *types.Envelope) error {
	if err := s.inner.Write(ctx, env); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Flush implements Sink.
func (s *IntervalSink) Flush(ctx context.Context) error {
	return s.flush(ctx, FlushTriggerTermination)
}

func (s *IntervalSink) flush(ctx context.Context, trigger FlushTrigger) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	wasDirty := s.dirty
	s.dirty = false
	switch trigger {
	case FlushTriggerInterval:
		s.byInterval++
	case FlushTriggerTermination:
		s.byTerm++
	}
	s.mu.Unlock()

	if err := s.inner.Flush(ctx); err != nil {
		s.mu.Lock()
		s.dirty = s.dirty || wasDirty
		s.mu.Unlock()
		s.logger.Error("sink flush failed", map[string]any{
			"trigger": string(trigger),
			"error":   err.Error(),
		})
		return err
	}
	s.logger.Debug("sink flushed", map[string]any{"trigger": string(trigger)})
	return nil
}

// Close stops the timer and closes the inner sink, which flushes it.
func (s *IntervalSink) Close() error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
	<-s.done

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.inner.Close()
}

// FlushTriggerStats returns how many flushes each trigger caused.
func (s *IntervalSink) FlushTriggerStats() map[FlushTrigger]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[FlushTrigger]int64{
		FlushTriggerInterval:    s.byInterval,
		FlushTriggerTermination: s.byTerm,
	}
}

func (s *IntervalSink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			dirty := s.dirty
			s.mu.Unlock()
			if dirty {
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				_ = s.flush(ctx, FlushTriggerInterval)
				cancel()
			}
		case <-s.stopCh:
			return
		}
	}
}

// Verify IntervalSink implements Sink.
var _ Sink = (*IntervalSink)(nil)
