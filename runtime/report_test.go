package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/types"
)

func newTestRunResult() *RunResult {
	code := 1
	return &RunResult{
		RunID:       "run-001",
		Input:       "events.bin",
		Output:      "messages.ndjson",
		StoragePath: "/data/datasets/msgfmt",
		Outcome:     &Outcome{Status: OutcomeSuccess, Message: "stream converted"},
		Duration:    5 * time.Second,
		FrameCount:  42,
		EventCounts: map[event.Kind]int64{
			event.KindEnvelope:      10,
			event.KindTestCaseReady: 4,
		},
		TestCases:      4,
		EngineExitCode: &code,
	}
}

func newTestSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		RunsStarted:     1,
		RunsCompleted:   1,
		EventsReceived:  42,
		MessagesEmitted: 30,
		Output:          "messages.ndjson",
		StorageBackend:  "fs",
		RunID:           "run-001",
	}
}

func TestBuildRunReport(t *testing.T) {
	report := BuildRunReport(newTestRunResult(), newTestSnapshot())

	if report.Version != types.Version || report.ProtocolVersion != types.ProtocolVersion {
		t.Errorf("versions = %q, %q", report.Version, report.ProtocolVersion)
	}
	if report.RunID != "run-001" || report.Input != "events.bin" || report.Output != "messages.ndjson" {
		t.Errorf("identity = %+v", report)
	}
	if report.Outcome != OutcomeSuccess || report.ExitCode != ExitCodeSuccess {
		t.Errorf("outcome = %s, exit code = %d", report.Outcome, report.ExitCode)
	}
	if report.DurationMs != 5000 || report.FrameCount != 42 || report.TestCases != 4 {
		t.Errorf("counts = %+v", report)
	}
	if report.EventCounts["envelope"] != 10 {
		t.Errorf("EventCounts = %v", report.EventCounts)
	}
	if report.EngineExitCode == nil || *report.EngineExitCode != 1 {
		t.Errorf("EngineExitCode = %v", report.EngineExitCode)
	}
	if report.Metrics == nil || report.Metrics.MessagesEmitted != 30 {
		t.Errorf("Metrics = %+v", report.Metrics)
	}
}

func TestBuildRunReport_Failure(t *testing.T) {
	result := newTestRunResult()
	result.Outcome = DetermineOutcome(&IngestionError{Kind: IngestionErrorEmit, Seq: 17, Err: errors.New("sink closed")}, nil)
	result.FailedSeq = 17

	report := BuildRunReport(result, newTestSnapshot())
	if report.Outcome != OutcomeEmitError || report.ExitCode != ExitCodeEmit || report.FailedSeq != 17 {
		t.Errorf("report = %+v", report)
	}
}

func TestWriteRunReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteRunReport(BuildRunReport(newTestRunResult(), newTestSnapshot()), path); err != nil {
		t.Fatalf("WriteRunReport failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	for _, key := range []string{"run_id", "outcome", "exit_code", "frame_count", "event_counts", "metrics"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("report missing key %q", key)
		}
	}
	if _, ok := parsed["failed_seq"]; ok {
		t.Error("failed_seq should be omitted on success")
	}
	if data[len(data)-1] != '\n' {
		t.Error("report should end with a newline")
	}
}

func TestWriteRunReport_EmptyPath(t *testing.T) {
	if err := WriteRunReport(&RunReport{}, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWriteRunReportTo_Writer(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRunReportTo(BuildRunReport(newTestRunResult(), newTestSnapshot()), &buf); err != nil {
		t.Fatalf("writeRunReportTo failed: %v", err)
	}
	var report RunReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if report.RunID != "run-001" {
		t.Errorf("RunID = %q", report.RunID)
	}
}

func TestDetermineOutcome(t *testing.T) {
	tests := []struct {
		name     string
		ingErr   error
		flushErr error
		want     OutcomeStatus
		exitCode int
	}{
		{"clean", nil, nil, OutcomeSuccess, ExitCodeSuccess},
		{"flush failure", nil, errors.New("flush"), OutcomeEmitError, ExitCodeEmit},
		{"emit failure", &IngestionError{Kind: IngestionErrorEmit, Err: errors.New("x")}, nil, OutcomeEmitError, ExitCodeEmit},
		{"stream failure", &IngestionError{Kind: IngestionErrorStream, Err: errors.New("x")}, nil, OutcomeStreamError, ExitCodeStream},
		{"canceled", &IngestionError{Kind: IngestionErrorCanceled, Err: context.Canceled}, nil, OutcomeCanceled, ExitCodeStream},
		{"ingestion error wins over flush", &IngestionError{Kind: IngestionErrorStream, Err: errors.New("x")}, errors.New("flush"), OutcomeStreamError, ExitCodeStream},
		{"unclassified error", errors.New("x"), nil, OutcomeStreamError, ExitCodeStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineOutcome(tt.ingErr, tt.flushErr)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if got.Status.ExitCode() != tt.exitCode {
				t.Errorf("exit code = %d, want %d", got.Status.ExitCode(), tt.exitCode)
			}
			if got.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}
