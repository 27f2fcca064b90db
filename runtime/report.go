package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/types"
)

// ReportFilename is the sidecar name of the report in Lode storage.
const ReportFilename = "report.json"

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	Version         string        `json:"version"`
	ProtocolVersion string        `json:"protocol_version"`
	RunID           string        `json:"run_id"`
	Input           string        `json:"input"`
	Output          string        `json:"output"`
	StoragePath     string        `json:"storage_path,omitempty"`
	Outcome         OutcomeStatus `json:"outcome"`
	Message         string        `json:"message"`
	ExitCode        int           `json:"exit_code"`
	DurationMs      int64         `json:"duration_ms"`
	FrameCount      int64         `json:"frame_count"`
	// FailedSeq is the frame that stopped the run, 0 on success.
	FailedSeq   int64            `json:"failed_seq,omitempty"`
	EventCounts map[string]int64 `json:"event_counts"`
	TestCases   int              `json:"test_cases"`

	EngineExitCode *int   `json:"engine_exit_code,omitempty"`
	EngineStderr   string `json:"engine_stderr,omitempty"`

	Metrics *metrics.Snapshot `json:"metrics"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
func BuildRunReport(result *RunResult, snap metrics.Snapshot) *RunReport {
	counts := make(map[string]int64, len(result.EventCounts))
	for k, v := range result.EventCounts {
		counts[string(k)] = v
	}

	return &RunReport{
		Version:         types.Version,
		ProtocolVersion: types.ProtocolVersion,
		RunID:           result.RunID,
		Input:           result.Input,
		Output:          result.Output,
		StoragePath:     result.StoragePath,
		Outcome:         result.Outcome.Status,
		Message:         result.Outcome.Message,
		ExitCode:        result.Outcome.Status.ExitCode(),
		DurationMs:      result.Duration.Milliseconds(),
		FrameCount:      result.FrameCount,
		FailedSeq:       result.FailedSeq,
		EventCounts:     counts,
		TestCases:       result.TestCases,
		EngineExitCode:  result.EngineExitCode,
		EngineStderr:    result.EngineStderr,
		Metrics:         &snap,
	}
}

// MarshalReport encodes the report as indented JSON with a trailing newline.
func MarshalReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
