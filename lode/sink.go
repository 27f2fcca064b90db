// Package lode persists emitted protocol messages to Lode datasets.
//
// Messages are stored as JSONL records under a Hive layout
// day=<YYYY-MM-DD>/run_id=<id>/message_type=<type>, on the local
// filesystem or S3. The same layout is used to read a run back.
package lode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/sink"
	"github.com/pithecene-io/msgfmt/types"
)

// DefaultBatchSize is the number of envelopes buffered before a write.
const DefaultBatchSize = 256

// Config holds Lode sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID (defaults to DefaultDataset).
	Dataset string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
	// BatchSize is the number of envelopes buffered per write.
	// Zero means DefaultBatchSize; 1 writes every envelope immediately.
	BatchSize int
}

// Validate checks required partition keys and fills defaults.
func (c *Config) Validate() error {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Day == "" {
		return errors.New("lode config: day is required")
	}
	if c.RunID == "" {
		return errors.New("lode config: run_id is required")
	}
	return nil
}

// Sink is a Lode-backed implementation of sink.Sink.
//
// Envelopes are buffered and written in batches; Flush writes whatever is
// pending and Close flushes before closing the client. A failed batch stays
// buffered so a later Flush retries it.
type Sink struct {
	config Config
	client Client

	mu      sync.Mutex
	pending []*types.Envelope
	nextSeq int64
}

// NewSink creates a new Lode sink.
func NewSink(config Config, client Client) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Sink{
		config:  config,
		client:  client,
		pending: make([]*types.Envelope, 0, config.BatchSize),
		nextSeq: 1,
	}, nil
}

// Write implements sink.Sink.
func (s *Sink) Write(ctx context.Context, env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, env)
	if len(s.pending) < s.config.BatchSize {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush implements sink.Sink.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Sink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.client.WriteMessages(ctx, s.pending, s.nextSeq); err != nil {
		return err
	}
	s.nextSeq += int64(len(s.pending))
	s.pending = s.pending[:0]
	return nil
}

// Pending returns the number of buffered envelopes.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WriteMetrics records the run's metrics snapshot.
func (s *Sink) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return s.client.WriteMetrics(ctx, snap, completedAt)
}

// Close flushes pending envelopes and closes the client.
func (s *Sink) Close() error {
	flushErr := s.Flush(context.Background())
	return errors.Join(flushErr, s.client.Close())
}

// Verify Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	mu sync.Mutex

	Batches []StubBatch
	Metrics []metrics.Snapshot
	Closed  bool

	// ErrorOnWrite, if non-nil, is returned by WriteMessages.
	ErrorOnWrite error
}

// StubBatch is a recorded WriteMessages call.
type StubBatch struct {
	FirstSeq int64
	Messages []*types.Envelope
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteMessages implements Client. The batch is copied.
func (c *StubClient) WriteMessages(_ context.Context, envs []*types.Envelope, firstSeq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ErrorOnWrite != nil {
		return c.ErrorOnWrite
	}
	batch := make([]*types.Envelope, len(envs))
	copy(batch, envs)
	c.Batches = append(c.Batches, StubBatch{FirstSeq: firstSeq, Messages: batch})
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
