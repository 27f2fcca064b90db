package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/msgfmt/iox"
	msglode "github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/types"
)

// ErrMetricsUnavailable is returned by sources that do not store metrics.
var ErrMetricsUnavailable = errors.New("metrics are only available from storage")

// Reader abstracts read-only access to emitted runs for CLI commands.
type Reader interface {
	// Timeline rebuilds the execution timeline of a run.
	Timeline(ctx context.Context, runID string) (*Timeline, error)
	// Metrics returns the latest stored metrics snapshot of a run.
	// An empty runID selects the most recent run.
	Metrics(ctx context.Context, runID string) (*MetricsSnapshot, error)
}

// FileReader reads a single run from an NDJSON message file ("-" is stdin).
type FileReader struct {
	Path string
}

// NewFileReader creates a reader over an NDJSON file.
func NewFileReader(path string) *FileReader {
	return &FileReader{Path: path}
}

// Timeline implements Reader. The file holds one run, so runID is only
// carried into the result.
func (r *FileReader) Timeline(_ context.Context, runID string) (*Timeline, error) {
	f, err := iox.OpenInput(r.Path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	envs, err := ReadEnvelopes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	return Build(runID, envs), nil
}

// Metrics implements Reader.
func (r *FileReader) Metrics(context.Context, string) (*MetricsSnapshot, error) {
	return nil, ErrMetricsUnavailable
}

// LodeReader reads runs persisted by the Lode sink.
type LodeReader struct {
	ds lode.Dataset
}

// NewLodeReader creates a reader over a Lode dataset.
func NewLodeReader(ds lode.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// Timeline implements Reader.
func (r *LodeReader) Timeline(ctx context.Context, runID string) (*Timeline, error) {
	if runID == "" {
		return nil, errors.New("run id is required to read messages from storage")
	}
	records, err := msglode.QueryRunMessages(ctx, r.ds, runID)
	if err != nil {
		return nil, err
	}
	envs := make([]*types.Envelope, 0, len(records))
	for _, rec := range records {
		env, err := rec.Envelope()
		if err != nil {
			return nil, fmt.Errorf("run %s seq %d: %w", runID, rec.Seq, err)
		}
		envs = append(envs, env)
	}
	return Build(runID, envs), nil
}

// Metrics implements Reader.
func (r *LodeReader) Metrics(ctx context.Context, runID string) (*MetricsSnapshot, error) {
	record, err := msglode.QueryLatestMetrics(ctx, r.ds, runID)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

var (
	_ Reader = (*FileReader)(nil)
	_ Reader = (*LodeReader)(nil)
)
