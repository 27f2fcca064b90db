package reader

import (
	"context"

	"github.com/pithecene-io/msgfmt/types"
)

// StubReader serves fixed data for development and testing.
type StubReader struct {
	Envelopes []*types.Envelope
	Snapshot  *MetricsSnapshot
	Err       error
}

// NewStubReader creates a stub reader over a small two-case run.
func NewStubReader() *StubReader {
	return &StubReader{
		Envelopes: SampleEnvelopes(),
		Snapshot: &MetricsSnapshot{
			Ts:              "2026-10-18T12:00:00Z",
			RunID:           "stub-run-001",
			Output:          "-",
			RunsStarted:     1,
			RunsCompleted:   1,
			EventsReceived:  13,
			MessagesEmitted: 13,
			Passthrough:     4,
		},
	}
}

// Timeline implements Reader.
func (r *StubReader) Timeline(_ context.Context, runID string) (*Timeline, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return Build(runID, r.Envelopes), nil
}

// Metrics implements Reader.
func (r *StubReader) Metrics(context.Context, string) (*MetricsSnapshot, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Snapshot, nil
}

var _ Reader = (*StubReader)(nil)

// SampleEnvelopes returns a run with one passing and one failing case.
func SampleEnvelopes() []*types.Envelope {
	defs := []string{"sd-1"}
	none := []string{}
	return []*types.Envelope{
		{Meta: &types.Meta{ProtocolVersion: types.ProtocolVersion}},
		{Pickle: &types.Pickle{
			ID: "p-1", URI: "features/login.feature", Name: "valid login",
			Steps: []types.PickleStep{{ID: "ps-1", Text: "the user logs in"}},
		}},
		{Pickle: &types.Pickle{
			ID: "p-2", URI: "features/login.feature", Name: "locked account",
			Steps: []types.PickleStep{{ID: "ps-2", Text: "a locked user logs in"}},
		}},
		{Hook: &types.Hook{ID: "h-1", Name: "reset db"}},
		{TestCase: &types.TestCase{ID: "tc-1", PickleID: "p-1", TestSteps: []types.TestCaseStep{
			{ID: "ts-1", HookID: "h-1"},
			{ID: "ts-2", PickleStepID: "ps-1", StepDefinitionIDs: &defs},
		}}},
		{TestCase: &types.TestCase{ID: "tc-2", PickleID: "p-2", TestSteps: []types.TestCaseStep{
			{ID: "ts-3", PickleStepID: "ps-2", StepDefinitionIDs: &none},
		}}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "tc-1-0", TestCaseID: "tc-1"}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "ts-1", TestCaseStartedID: "tc-1-0",
			TestResult: types.TestResult{Status: types.StatusPassed, Duration: types.Duration{Nanos: 2_000_000}}}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "ts-2", TestCaseStartedID: "tc-1-0",
			TestResult: types.TestResult{Status: types.StatusPassed, Duration: types.Duration{Seconds: 1}}}},
		{TestCaseFinished: &types.TestCaseFinished{TestCaseStartedID: "tc-1-0"}},
		{TestCaseStarted: &types.TestCaseStarted{ID: "tc-2-0", TestCaseID: "tc-2"}},
		{TestStepFinished: &types.TestStepFinished{TestStepID: "ts-3", TestCaseStartedID: "tc-2-0",
			TestResult: types.TestResult{Status: types.StatusUndefined, Message: "no step definition"}}},
		{TestCaseFinished: &types.TestCaseFinished{TestCaseStartedID: "tc-2-0"}},
	}
}
