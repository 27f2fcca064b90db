package reader

import "errors"

// ParseMetricsRecord converts a Lode record (map[string]any) to a MetricsSnapshot.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts:             toString(record["ts"]),
		RunID:          toString(record["run_id"]),
		Output:         toString(record["output"]),
		StorageBackend: toString(record["storage_backend"]),

		RunsStarted:   toInt64(record["runs_started"]),
		RunsCompleted: toInt64(record["runs_completed"]),
		RunsFailed:    toInt64(record["runs_failed"]),

		EventsReceived:    toInt64(record["events_received"]),
		EventsByKind:      toCountMap(record["events_by_kind"]),
		FrameDecodeErrors: toInt64(record["frame_decode_errors"]),

		MessagesEmitted:     toInt64(record["messages_emitted"]),
		MessagesByType:      toCountMap(record["messages_by_type"]),
		Passthrough:         toInt64(record["passthrough"]),
		CorrelationFailures: toInt64(record["correlation_failures"]),
		ResolverFailures:    toInt64(record["resolver_failures"]),
		CorrelationEntries:  toInt64(record["correlation_entries"]),

		SinkWriteSuccess: toInt64(record["sink_write_success"]),
		SinkWriteFailure: toInt64(record["sink_write_failure"]),
	}

	// The write path always populates these; missing values indicate
	// data corruption or a malformed record.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}

	return snap, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toCountMap converts a per-key counter map from Lode record format.
// Handles both map[string]int64 (direct) and map[string]any (JSON round-trip).
func toCountMap(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
