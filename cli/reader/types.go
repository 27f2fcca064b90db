// Package reader provides the read-side data access layer for the msgfmt CLI.
//
// It consumes emitted protocol messages (from an NDJSON file or from Lode
// storage) and rebuilds the execution timeline by following the identifiers
// the messages carry: testCaseStarted -> testCase -> pickle, and
// testStepFinished -> testCaseStarted + testStep.
package reader

// Case status values beyond the protocol step statuses.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusRunning    = "RUNNING"
	StatusNotRun     = "NOT_RUN"
)

// Step kinds.
const (
	StepKindHook = "hook"
	StepKindStep = "step"
)

// Timeline is a run's test cases, in the order their testCase messages
// were emitted, with per-step results attached.
type Timeline struct {
	RunID           string     `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ProtocolVersion string     `json:"protocol_version,omitempty" yaml:"protocol_version,omitempty"`
	Messages        int        `json:"messages" yaml:"messages"`
	Cases           []CaseView `json:"cases" yaml:"cases"`
	Summary         Summary    `json:"summary" yaml:"summary"`
	// Issues lists references that could not be resolved.
	Issues []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// CaseView is one test case and its single attempt.
type CaseView struct {
	TestCaseID string     `json:"test_case_id" yaml:"test_case_id"`
	AttemptID  string     `json:"attempt_id,omitempty" yaml:"attempt_id,omitempty"`
	PickleID   string     `json:"pickle_id" yaml:"pickle_id"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	URI        string     `json:"uri,omitempty" yaml:"uri,omitempty"`
	Status     string     `json:"status" yaml:"status"`
	Finished   bool       `json:"finished" yaml:"finished"`
	DurationMs int64      `json:"duration_ms" yaml:"duration_ms"`
	Steps      []StepView `json:"steps" yaml:"steps"`
}

// StepView is one step of a test case.
type StepView struct {
	StepID            string   `json:"step_id" yaml:"step_id"`
	Kind              string   `json:"kind" yaml:"kind"`
	Text              string   `json:"text" yaml:"text"`
	StepDefinitionIDs []string `json:"step_definition_ids,omitempty" yaml:"step_definition_ids,omitempty"`
	Status            string   `json:"status" yaml:"status"`
	DurationMs        int64    `json:"duration_ms" yaml:"duration_ms"`
	Message           string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Summary aggregates a timeline.
type Summary struct {
	TestCases int            `json:"test_cases" yaml:"test_cases"`
	Started   int            `json:"started" yaml:"started"`
	Finished  int            `json:"finished" yaml:"finished"`
	Steps     int            `json:"steps" yaml:"steps"`
	ByStatus  map[string]int `json:"by_status" yaml:"by_status"`
}

// CaseRow is the flattened, table-friendly form of a CaseView.
type CaseRow struct {
	TestCaseID string `json:"test_case_id" yaml:"test_case_id"`
	Name       string `json:"name" yaml:"name"`
	Status     string `json:"status" yaml:"status"`
	Steps      int    `json:"steps" yaml:"steps"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Rows flattens the timeline's cases for table output.
func (t *Timeline) Rows() []CaseRow {
	rows := make([]CaseRow, len(t.Cases))
	for i, c := range t.Cases {
		rows[i] = CaseRow{
			TestCaseID: c.TestCaseID,
			Name:       c.Name,
			Status:     c.Status,
			Steps:      len(c.Steps),
			DurationMs: c.DurationMs,
		}
	}
	return rows
}

// MetricsSnapshot is a stored run metrics record.
type MetricsSnapshot struct {
	Ts             string `json:"ts" yaml:"ts"`
	RunID          string `json:"run_id" yaml:"run_id"`
	Output         string `json:"output" yaml:"output"`
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`

	// Run lifecycle
	RunsStarted   int64 `json:"runs_started" yaml:"runs_started"`
	RunsCompleted int64 `json:"runs_completed" yaml:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed" yaml:"runs_failed"`

	// Ingestion
	EventsReceived    int64            `json:"events_received" yaml:"events_received"`
	EventsByKind      map[string]int64 `json:"events_by_kind,omitempty" yaml:"events_by_kind,omitempty"`
	FrameDecodeErrors int64            `json:"frame_decode_errors" yaml:"frame_decode_errors"`

	// Emission
	MessagesEmitted     int64            `json:"messages_emitted" yaml:"messages_emitted"`
	MessagesByType      map[string]int64 `json:"messages_by_type,omitempty" yaml:"messages_by_type,omitempty"`
	Passthrough         int64            `json:"passthrough" yaml:"passthrough"`
	CorrelationFailures int64            `json:"correlation_failures" yaml:"correlation_failures"`
	ResolverFailures    int64            `json:"resolver_failures" yaml:"resolver_failures"`
	CorrelationEntries  int64            `json:"correlation_entries" yaml:"correlation_entries"`

	// Sinks
	SinkWriteSuccess int64 `json:"sink_write_success" yaml:"sink_write_success"`
	SinkWriteFailure int64 `json:"sink_write_failure" yaml:"sink_write_failure"`
}

// TableData returns the flattened rows used for table output.
func (t *Timeline) TableData() any {
	return t.Rows()
}
