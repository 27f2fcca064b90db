package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/types"
)

// Record kind discriminator values.
const (
	RecordKindMessage = "message"
	RecordKindMetrics = "metrics"
)

// messageTypeMetrics is the message_type partition value for metrics records.
const messageTypeMetrics = "metrics"

// DeriveDay computes the partition day from the run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// MessageRecord is the storage format for one emitted envelope.
// Seq is the 1-based emission index within the run.
type MessageRecord struct {
	RecordKind  string          `json:"record_kind"`
	RunID       string          `json:"run_id"`
	Day         string          `json:"day"`
	MessageType string          `json:"message_type"`
	Seq         int64           `json:"seq"`
	Message     json.RawMessage `json:"message"`
}

// toMessageRecordMap converts an envelope to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toMessageRecordMap(env *types.Envelope, seq int64, cfg Config) (map[string]any, error) {
	line, err := env.MarshalNDJSON()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"record_kind":  RecordKindMessage,
		"run_id":       cfg.RunID,
		"day":          cfg.Day,
		"message_type": string(env.Type()),
		"seq":          seq,
		// Drop the NDJSON terminator; the codec adds its own framing.
		"message": json.RawMessage(line[:len(line)-1]),
	}, nil
}

// fromRecordMap decodes a stored message record back into a MessageRecord.
func fromRecordMap(m map[string]any) (MessageRecord, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return MessageRecord{}, err
	}
	var rec MessageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return MessageRecord{}, fmt.Errorf("invalid message record: %w", err)
	}
	return rec, nil
}

// Envelope parses the stored message.
func (r MessageRecord) Envelope() (*types.Envelope, error) {
	return types.ParseEnvelope(r.Message)
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
// Written once per run under message_type=metrics.
func toMetricsRecordMap(snap metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":          RecordKindMetrics,
		"run_id":               cfg.RunID,
		"day":                  cfg.Day,
		"message_type":         messageTypeMetrics,
		"ts":                   completedAt.UTC().Format(time.RFC3339Nano),
		"runs_started":         snap.RunsStarted,
		"runs_completed":       snap.RunsCompleted,
		"runs_failed":          snap.RunsFailed,
		"events_received":      snap.EventsReceived,
		"events_by_kind":       snap.EventsByKind,
		"frame_decode_errors":  snap.FrameDecodeErrors,
		"messages_emitted":     snap.MessagesEmitted,
		"messages_by_type":     snap.MessagesByType,
		"passthrough":          snap.Passthrough,
		"correlation_failures": snap.CorrelationFailures,
		"resolver_failures":    snap.ResolverFailures,
		"correlation_entries":  snap.CorrelationEntries,
		"sink_write_success":   snap.SinkWriteSuccess,
		"sink_write_failure":   snap.SinkWriteFailure,
		"output":               snap.Output,
		"storage_backend":      snap.StorageBackend,
	}
}
