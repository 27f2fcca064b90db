package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// ErrNoMessagesFound is returned when a run has no stored messages.
var ErrNoMessagesFound = errors.New("no messages found")

// QueryLatestMetrics finds and reads the most recent metrics record from Lode.
// Filters by runID if non-empty.
// Returns the raw record map or ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Latest first: snapshots are ordered by creation time
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "message_type", messageTypeMetrics) {
			continue
		}
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindMetrics {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

// QueryRunMessages reads every stored message of a run, ordered by seq.
// A seq seen in more than one snapshot is returned once.
// Returns ErrNoMessagesFound if the run has none.
func QueryRunMessages(ctx context.Context, ds lode.Dataset, runID string) ([]MessageRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []MessageRecord
	seen := make(map[int64]struct{})
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMessage {
				continue
			}
			if toString(record["run_id"]) != runID {
				continue
			}
			rec, err := fromRecordMap(record)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[rec.Seq]; dup {
				continue
			}
			seen[rec.Seq] = struct{}{}
			out = append(out, rec)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w for run %q", ErrNoMessagesFound, runID)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
