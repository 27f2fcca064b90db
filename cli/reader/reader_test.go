package reader

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	msglode "github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/types"
)

func TestBuild_SampleRun(t *testing.T) {
	tl := Build("run-1", SampleEnvelopes())

	if tl.RunID != "run-1" || tl.Messages != 13 {
		t.Errorf("RunID/Messages = %q/%d", tl.RunID, tl.Messages)
	}
	if tl.ProtocolVersion != types.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q", tl.ProtocolVersion)
	}
	if len(tl.Issues) != 0 {
		t.Errorf("unexpected issues: %v", tl.Issues)
	}
	if len(tl.Cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(tl.Cases))
	}

	first := tl.Cases[0]
	if first.TestCaseID != "tc-1" || first.AttemptID != "tc-1-0" || first.Name != "valid login" {
		t.Errorf("first case = %+v", first)
	}
	if first.Status != string(types.StatusPassed) || !first.Finished {
		t.Errorf("first case status = %q finished=%v", first.Status, first.Finished)
	}
	if first.DurationMs != 1002 {
		t.Errorf("first case duration = %dms, want 1002", first.DurationMs)
	}
	hook, step := first.Steps[0], first.Steps[1]
	if hook.Kind != StepKindHook || hook.Text != "reset db" {
		t.Errorf("hook step = %+v", hook)
	}
	if step.Kind != StepKindStep || step.Text != "the user logs in" || len(step.StepDefinitionIDs) != 1 {
		t.Errorf("pickle step = %+v", step)
	}

	second := tl.Cases[1]
	if second.Status != string(types.StatusUndefined) {
		t.Errorf("second case status = %q, want UNDEFINED", second.Status)
	}
	if second.Steps[0].Message != "no step definition" {
		t.Errorf("step message = %q", second.Steps[0].Message)
	}

	s := tl.Summary
	if s.TestCases != 2 || s.Started != 2 || s.Finished != 2 || s.Steps != 3 {
		t.Errorf("summary = %+v", s)
	}
	if s.ByStatus["PASSED"] != 2 || s.ByStatus["UNDEFINED"] != 1 {
		t.Errorf("ByStatus = %v", s.ByStatus)
	}
}

func TestBuild_DefinitionsAfterTestCase(t *testing.T) {
	envs := SampleEnvelopes()
	// Move the pickles and hook to the end of the stream.
	reordered := append([]*types.Envelope{envs[0]}, envs[4:]...)
	reordered = append(reordered, envs[1:4]...)

	tl := Build("", reordered)
	if len(tl.Issues) != 0 {
		t.Errorf("unexpected issues: %v", tl.Issues)
	}
	if tl.Cases[0].Name != "valid login" || tl.Cases[0].Steps[0].Text != "reset db" {
		t.Errorf("definitions not resolved: %+v", tl.Cases[0])
	}
}

func TestBuild_WorstStatusWins(t *testing.T) {
	defs := []string{}
	envs := []*types.Envelope{
		{TestCase: &types.TestCase{ID: "c", PickleID: "p", TestSteps: []types.TestCaseStep{
			{ID: "s1", PickleStepID: "x", StepDefinitionIDs: &defs},
			{ID: "s2", PickleStepID: "y", StepDefinitionIDs: &defs},
			{ID: "s3", PickleStepID: "z", StepDefinitionIDs: &defs},
		}}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "c-0", TestCaseID: "c"}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "s1", TestCaseStartedID: "c-0", TestResult: types.TestResult{Status: types.StatusPassed}}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "s2", TestCaseStartedID: "c-0", TestResult: types.TestResult{Status: types.StatusFailed}}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "s3", TestCaseStartedID: "c-0", TestResult: types.TestResult{Status: types.StatusSkipped}}},
	}
	tl := Build("", envs)
	if tl.Cases[0].Status != string(types.StatusFailed) {
		t.Errorf("status = %q, want FAILED", tl.Cases[0].Status)
	}
	if tl.Cases[0].Finished {
		t.Error("case without testCaseFinished should not be finished")
	}
}

func TestBuild_CaseStates(t *testing.T) {
	envs := []*types.Envelope{
		{TestCase: &types.TestCase{ID: "idle", PickleID: "p"}},
		{TestCase: &types.TestCase{ID: "busy", PickleID: "p"}},
		{TestCase: &types.TestCase{ID: "empty", PickleID: "p"}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "busy-0", TestCaseID: "busy"}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "empty-0", TestCaseID: "empty"}},
		{TestCaseFinished: &types.TestCaseFinished{TestCaseStartedID: "empty-0"}},
	}
	tl := Build("", envs)
	want := []string{StatusNotStarted, StatusRunning, string(types.StatusUnknown)}
	for i, w := range want {
		if tl.Cases[i].Status != w {
			t.Errorf("case %s status = %q, want %q", tl.Cases[i].TestCaseID, tl.Cases[i].Status, w)
		}
	}
}

func TestBuild_Issues(t *testing.T) {
	envs := []*types.Envelope{
		{TestCase: &types.TestCase{ID: "c", PickleID: "missing-pickle", TestSteps: []types.TestCaseStep{{ID: "s1", HookID: "h"}}}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "x-0", TestCaseID: "x"}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "c-0", TestCaseID: "c"}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "s1", TestCaseStartedID: "nope-0"}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "s9", TestCaseStartedID: "c-0"}},
		{TestCaseFinished: &types.TestCaseFinished{TestCaseStartedID: "nope-0"}},
	}
	tl := Build("", envs)
	if len(tl.Issues) != 5 {
		t.Fatalf("got %d issues, want 5: %v", len(tl.Issues), tl.Issues)
	}
	for i, want := range []string{"unknown pickle", "unknown testCase", "unknown attempt", "not in testCase", "unknown attempt"} {
		if !strings.Contains(tl.Issues[i], want) {
			t.Errorf("issue %d = %q, want mention of %q", i, tl.Issues[i], want)
		}
	}
	if tl.Cases[0].Steps[0].Text != "h" {
		t.Errorf("unknown hook should fall back to its id, got %q", tl.Cases[0].Steps[0].Text)
	}
}

func TestTimelineRows(t *testing.T) {
	rows := Build("", SampleEnvelopes()).Rows()
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0] != (CaseRow{TestCaseID: "tc-1", Name: "valid login", Status: "PASSED", Steps: 2, DurationMs: 1002}) {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestReadEnvelopes(t *testing.T) {
	input := "{\"meta\":{\"protocolVersion\":\"27.0.0\"}}\n\n  \n{\"testCaseStarted\":{\"id\":\"c-0\",\"testCaseId\":\"c\"}}\n"
	envs, err := ReadEnvelopes(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadEnvelopes failed: %v", err)
	}
	if len(envs) != 2 || envs[1].Type() != types.MessageTypeTestCaseStarted {
		t.Errorf("got %d envelopes", len(envs))
	}
}

// unmodeledLines are protocol messages the timeline does not interpret.
var unmodeledLines = []string{
	`{"gherkinDocument":{"uri":"features/a.feature","feature":{"keyword":"Feature","name":"a","children":[]},"comments":[]}}`,
	`{"parameterType":{"id":"pt1","name":"color","regularExpressions":["red|blue"],"preferForRegularExpressionMatch":false,"useForSnippets":true}}`,
	`{"undefinedParameterType":{"expression":"{flavor}","name":"flavor"}}`,
	`{"testRunHookStarted":{"id":"trh1","testRunStartedId":"r1","hookId":"hk1","timestamp":{"seconds":1,"nanos":0}}}`,
}

// mixedStream interleaves unmodeled messages with the sample run.
func mixedStream(t *testing.T) []*types.Envelope {
	t.Helper()
	var envs []*types.Envelope
	for i, env := range SampleEnvelopes() {
		envs = append(envs, env)
		if i < len(unmodeledLines) {
			extra, err := types.ParseEnvelope([]byte(unmodeledLines[i]))
			if err != nil {
				t.Fatalf("ParseEnvelope failed: %v", err)
			}
			envs = append(envs, extra)
		}
	}
	return envs
}

func TestReadEnvelopes_MixedStream(t *testing.T) {
	var buf bytes.Buffer
	for _, env := range mixedStream(t) {
		if err := env.WriteNDJSON(&buf); err != nil {
			t.Fatalf("WriteNDJSON failed: %v", err)
		}
	}

	envs, err := ReadEnvelopes(&buf)
	if err != nil {
		t.Fatalf("ReadEnvelopes failed: %v", err)
	}
	want := len(SampleEnvelopes()) + len(unmodeledLines)
	if len(envs) != want {
		t.Fatalf("got %d envelopes, want %d", len(envs), want)
	}
	if envs[1].Type() != "gherkinDocument" || envs[3].Type() != "parameterType" {
		t.Errorf("types = %q, %q", envs[1].Type(), envs[3].Type())
	}

	mixed := Build("run-1", envs)
	plain := Build("run-1", SampleEnvelopes())
	if mixed.Messages != want {
		t.Errorf("Messages = %d, want %d", mixed.Messages, want)
	}
	if len(mixed.Issues) != 0 {
		t.Errorf("unexpected issues: %v", mixed.Issues)
	}
	if !reflect.DeepEqual(mixed.Cases, plain.Cases) || !reflect.DeepEqual(mixed.Summary, plain.Summary) {
		t.Errorf("unmodeled messages changed the timeline:\n got %+v\nwant %+v", mixed.Cases, plain.Cases)
	}
}

func TestReadEnvelopes_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"bad json", "{\"meta\":{}}\n{oops\n", "line 2"},
		{"empty envelope", "{}\n", "line 1"},
		{"two payloads", "{\"meta\":{},\"hook\":{}}\n", "more than one payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEnvelopes(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestFileReader(t *testing.T) {
	var buf bytes.Buffer
	for _, env := range SampleEnvelopes() {
		if err := env.WriteNDJSON(&buf); err != nil {
			t.Fatalf("WriteNDJSON failed: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "messages.ndjson")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewFileReader(path)
	tl, err := r.Timeline(t.Context(), "run-f")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(tl.Cases) != 2 || tl.RunID != "run-f" {
		t.Errorf("timeline = %+v", tl)
	}
	if _, err := r.Metrics(t.Context(), ""); !errors.Is(err, ErrMetricsUnavailable) {
		t.Errorf("Metrics error = %v, want ErrMetricsUnavailable", err)
	}
}

func TestFileReader_Missing(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "missing.ndjson")).Timeline(t.Context(), "")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLodeReader(t *testing.T) {
	root := t.TempDir()
	cfg := msglode.Config{Dataset: "msgfmt", Day: "2026-10-18", RunID: "run-l", BatchSize: 5}
	client, err := msglode.NewLodeClient(cfg, root)
	if err != nil {
		t.Fatalf("NewLodeClient failed: %v", err)
	}
	s, err := msglode.NewSink(cfg, client)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	for _, env := range SampleEnvelopes() {
		if err := s.Write(t.Context(), env); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ds, err := msglode.NewReadDatasetFS("msgfmt", root)
	if err != nil {
		t.Fatalf("NewReadDatasetFS failed: %v", err)
	}
	r := NewLodeReader(ds)

	tl, err := r.Timeline(t.Context(), "run-l")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if tl.Messages != 13 || len(tl.Cases) != 2 || len(tl.Issues) != 0 {
		t.Errorf("timeline messages=%d cases=%d issues=%v", tl.Messages, len(tl.Cases), tl.Issues)
	}

	if _, err := r.Timeline(t.Context(), ""); err == nil {
		t.Error("expected error for empty run id")
	}
	if _, err := r.Metrics(t.Context(), "run-l"); !errors.Is(err, msglode.ErrNoMetricsFound) {
		t.Errorf("Metrics error = %v, want ErrNoMetricsFound", err)
	}
}

func TestLodeReader_MixedStream(t *testing.T) {
	root := t.TempDir()
	cfg := msglode.Config{Dataset: "msgfmt", Day: "2026-10-18", RunID: "run-m", BatchSize: 4}
	client, err := msglode.NewLodeClient(cfg, root)
	if err != nil {
		t.Fatalf("NewLodeClient failed: %v", err)
	}
	s, err := msglode.NewSink(cfg, client)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	envs := mixedStream(t)
	for _, env := range envs {
		if err := s.Write(t.Context(), env); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ds, err := msglode.NewReadDatasetFS("msgfmt", root)
	if err != nil {
		t.Fatalf("NewReadDatasetFS failed: %v", err)
	}
	records, err := msglode.QueryRunMessages(t.Context(), ds, "run-m")
	if err != nil {
		t.Fatalf("QueryRunMessages failed: %v", err)
	}
	if len(records) != len(envs) {
		t.Fatalf("got %d records, want %d", len(records), len(envs))
	}
	if records[1].MessageType != "gherkinDocument" || records[7].MessageType != "testRunHookStarted" {
		t.Errorf("message types = %q, %q", records[1].MessageType, records[7].MessageType)
	}

	tl, err := NewLodeReader(ds).Timeline(t.Context(), "run-m")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if tl.Messages != len(envs) || len(tl.Cases) != 2 || len(tl.Issues) != 0 {
		t.Errorf("timeline messages=%d cases=%d issues=%v", tl.Messages, len(tl.Cases), tl.Issues)
	}
}

func TestStubReader(t *testing.T) {
	r := NewStubReader()
	tl, err := r.Timeline(t.Context(), "stub")
	if err != nil || len(tl.Cases) != 2 {
		t.Fatalf("Timeline = %+v, %v", tl, err)
	}
	snap, err := r.Metrics(t.Context(), "")
	if err != nil || snap.RunID != "stub-run-001" {
		t.Fatalf("Metrics = %+v, %v", snap, err)
	}

	r.Err = errors.New("boom")
	if _, err := r.Timeline(t.Context(), ""); err == nil {
		t.Error("expected error")
	}
}
