package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/types"
)

// Client abstracts the Lode storage client.
// Real implementations connect to Lode; stubs are used for testing.
type Client interface {
	// WriteMessages writes a batch of envelopes. firstSeq is the emission
	// index of the first envelope; the rest follow consecutively.
	// Must preserve ordering within the batch.
	WriteMessages(ctx context.Context, envs []*types.Envelope, firstSeq int64) error

	// WriteMetrics writes the run's metrics snapshot as a single record.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// LodeClient is a real Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: day/run_id/message_type.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

// WriteMessages writes a batch of envelopes to Lode in a single snapshot.
// Envelopes are partitioned by message_type (included in each record).
func (c *LodeClient) WriteMessages(ctx context.Context, envs []*types.Envelope, firstSeq int64) error {
	if len(envs) == 0 {
		return nil
	}

	records := make([]any, 0, len(envs))
	for i, env := range envs {
		record, err := toMessageRecordMap(env, firstSeq+int64(i), c.config)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// WriteMetrics writes a metrics record under message_type=metrics.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, completedAt, c.config)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
