// Package adapter defines the boundary for run completion notifications.
//
// Adapters tell downstream systems that a message stream is complete and
// where it was written. The runtime publishes once per run; the caller
// constructs the adapter and closes it.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeRunCompleted is the event_type of every completion event.
const EventTypeRunCompleted = "run_completed"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	EventType       string `json:"event_type"` // always "run_completed"
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Day             string `json:"day"`
	Outcome         string `json:"outcome"` // success, stream_error, emit_error, canceled
	Message         string `json:"message,omitempty"`
	// Output is where the NDJSON stream went ("-" for stdout).
	Output string `json:"output"`
	// StoragePath is the Lode partition of the run, empty without storage.
	StoragePath  string `json:"storage_path,omitempty"`
	Timestamp    string `json:"timestamp"` // RFC 3339
	FrameCount   int64  `json:"frame_count"`
	MessageCount int64  `json:"message_count"`
	TestCases    int64  `json:"test_cases"`
	DurationMs   int64  `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; it doubles per attempt.
var BaseBackoff = 500 * time.Millisecond

// Retry calls fn once plus up to retries more times, sleeping with
// exponential backoff between attempts. It stops early when fn succeeds,
// when ctx is done, or when permanent reports the error as non-retriable.
// The name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Stub records published events for tests.
type Stub struct {
	Events []*RunCompletedEvent
	Closed bool
	// Err, if non-nil, is returned by Publish.
	Err error
}

// Publish implements Adapter.
func (s *Stub) Publish(_ context.Context, event *RunCompletedEvent) error {
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, event)
	return nil
}

// Close implements Adapter.
func (s *Stub) Close() error {
	s.Closed = true
	return nil
}

// Verify Stub implements Adapter.
var _ Adapter = (*Stub)(nil)
