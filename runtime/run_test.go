package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/msgfmt/adapter"
	"github.com/pithecene-io/msgfmt/correlate"
	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/sink"
	"github.com/pithecene-io/msgfmt/types"
)

// mockEngine serves a fixed frame stream as its stdout.
type mockEngine struct {
	mu       sync.Mutex
	stdout   io.Reader
	exitCode int
	startErr error
	waitErr  error
	started  bool
	killed   bool
}

func (m *mockEngine) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockEngine) Stdout() io.Reader { return m.stdout }

func (m *mockEngine) Wait() (*EngineResult, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &EngineResult{ExitCode: m.exitCode, StderrBytes: []byte("engine log\n")}, nil
}

func (m *mockEngine) Kill() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = true
	return nil
}

func (m *mockEngine) factory() EngineFactory {
	return func(*EngineConfig, string) Engine { return m }
}

type stubMetricsWriter struct {
	snaps []metrics.Snapshot
	err   error
}

func (w *stubMetricsWriter) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	if w.err != nil {
		return w.err
	}
	w.snaps = append(w.snaps, snap)
	return nil
}

func newRun(t *testing.T, cfg *RunConfig) *RunResult {
	t.Helper()
	if cfg.RunID == "" {
		cfg.RunID = "run-1"
	}
	orch, err := NewRunOrchestrator(cfg)
	if err != nil {
		t.Fatalf("NewRunOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return result
}

func TestRunOrchestrator_SuccessfulRun(t *testing.T) {
	out := sink.NewStubSink()
	collector := metrics.NewCollector("-", "memory", "run-1")
	mw := &stubMetricsWriter{}
	files := lode.NewStubFileWriter()
	notify := &adapter.Stub{}

	result := newRun(t, &RunConfig{
		Input:       bytes.NewReader(encodeStream(t, scenario(t)...)),
		InputName:   "-",
		Sink:        out,
		Output:      "-",
		StoragePath: "mem://msgfmt",
		Day:         "2026-10-18",
		Metrics:     mw,
		FileWriter:  files,
		Adapter:     notify,
		Collector:   collector,
	})

	if result.Outcome.Status != OutcomeSuccess || result.Err != nil {
		t.Fatalf("outcome = %+v, err = %v", result.Outcome, result.Err)
	}
	if result.FrameCount != 10 || result.TestCases != 1 {
		t.Errorf("FrameCount = %d, TestCases = %d; want 10, 1", result.FrameCount, result.TestCases)
	}

	wantTypes := []types.MessageType{
		types.MessageTypeMeta,
		types.MessageTypeTestCase,
		types.MessageTypeTestCaseStarted,
		types.MessageTypeTestStepFinished,
		types.MessageTypeTestStepFinished,
		types.MessageTypeTestCaseFinished,
	}
	gotTypes := out.Types()
	if len(gotTypes) != len(wantTypes) {
		t.Fatalf("wrote %v, want %v", gotTypes, wantTypes)
	}
	for i := range wantTypes {
		if gotTypes[i] != wantTypes[i] {
			t.Errorf("message %d = %s, want %s", i, gotTypes[i], wantTypes[i])
		}
	}
	if out.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", out.Flushes)
	}

	tc := out.Written[1].TestCase
	if tc.PickleID != "p1" || tc.TestSteps[0].HookID != "hook-1" || tc.TestSteps[1].PickleStepID != "ps1" {
		t.Errorf("testCase = %+v", tc)
	}
	if got := out.Written[3].TestStepFinished.TestCaseStartedID; got != correlate.AttemptID("c1") {
		t.Errorf("testCaseStartedId = %q, want %q", got, correlate.AttemptID("c1"))
	}

	snap := collector.Snapshot()
	if snap.RunsStarted != 1 || snap.RunsCompleted != 1 || snap.MessagesEmitted != 6 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.CorrelationEntries != 2 {
		t.Errorf("CorrelationEntries = %d, want 2", snap.CorrelationEntries)
	}

	if len(mw.snaps) != 1 || mw.snaps[0].RunsCompleted != 1 {
		t.Errorf("metrics writes = %+v", mw.snaps)
	}

	if len(files.Files) != 1 || files.Files[0].Filename != ReportFilename {
		t.Fatalf("sidecar files = %+v", files.Files)
	}
	var report RunReport
	if err := json.Unmarshal(files.Files[0].Data, &report); err != nil {
		t.Fatalf("report unmarshal: %v", err)
	}
	if report.Outcome != OutcomeSuccess || report.FrameCount != 10 || report.EventCounts["test_step_finished"] != 2 {
		t.Errorf("report = %+v", report)
	}

	if len(notify.Events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notify.Events))
	}
	ev := notify.Events[0]
	if ev.RunID != "run-1" || ev.Outcome != "success" || ev.Day != "2026-10-18" ||
		ev.MessageCount != 6 || ev.TestCases != 1 || ev.StoragePath != "mem://msgfmt" {
		t.Errorf("completion event = %+v", ev)
	}
}

func TestRunOrchestrator_UnrecordedStepIsEmitError(t *testing.T) {
	out := sink.NewStubSink()
	collector := metrics.NewCollector("-", "", "run-1")
	stream := encodeStream(t,
		event.TestStepFinished{TestStep: event.TestStep{ID: "ghost"}, Result: event.Result{Status: event.StatusPassed}},
	)

	result := newRun(t, &RunConfig{Input: bytes.NewReader(stream), Sink: out, Collector: collector})

	if result.Outcome.Status != OutcomeEmitError {
		t.Fatalf("outcome = %+v, want emit_error", result.Outcome)
	}
	if result.Outcome.Status.ExitCode() != ExitCodeEmit {
		t.Errorf("exit code = %d, want %d", result.Outcome.Status.ExitCode(), ExitCodeEmit)
	}
	if !errors.Is(result.Err, correlate.ErrUnresolved) {
		t.Errorf("Err = %v, want ErrUnresolved", result.Err)
	}
	if result.FailedSeq != 1 {
		t.Errorf("FailedSeq = %d, want 1", result.FailedSeq)
	}
	if len(out.Written) != 0 {
		t.Errorf("wrote %d messages, want 0", len(out.Written))
	}
	if out.Flushes != 1 {
		t.Error("sink should be flushed on failure paths")
	}
	snap := collector.Snapshot()
	if snap.RunsFailed != 1 || snap.CorrelationFailures != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunOrchestrator_StreamErrorKeepsEarlierMessages(t *testing.T) {
	out := sink.NewStubSink()
	stream := encodeStream(t, scenario(t)[:1]...)
	stream = append(stream, 0x00, 0x00, 0x10) // truncated length prefix

	result := newRun(t, &RunConfig{Input: bytes.NewReader(stream), Sink: out})

	if result.Outcome.Status != OutcomeStreamError {
		t.Fatalf("outcome = %+v, want stream_error", result.Outcome)
	}
	if result.Outcome.Status.ExitCode() != ExitCodeStream {
		t.Errorf("exit code = %d, want %d", result.Outcome.Status.ExitCode(), ExitCodeStream)
	}
	if len(out.Written) != 1 || out.Flushes != 1 {
		t.Errorf("written = %d, flushes = %d; want 1, 1", len(out.Written), out.Flushes)
	}
	if result.FailedSeq != 2 {
		t.Errorf("FailedSeq = %d, want 2", result.FailedSeq)
	}
}

func TestRunOrchestrator_SinkWriteErrorIsUnchanged(t *testing.T) {
	errDisk := errors.New("disk full")
	out := sink.NewStubSink()
	out.ErrorOnWrite = errDisk

	result := newRun(t, &RunConfig{Input: bytes.NewReader(encodeStream(t, scenario(t)...)), Sink: out})

	if result.Outcome.Status != OutcomeEmitError {
		t.Fatalf("outcome = %+v, want emit_error", result.Outcome)
	}
	var ingErr *IngestionError
	if !errors.As(result.Err, &ingErr) || ingErr.Err != errDisk {
		t.Errorf("sink error should surface unchanged, got %v", result.Err)
	}
}

func TestRunOrchestrator_FlushFailureIsEmitError(t *testing.T) {
	out := sink.NewStubSink()
	out.ErrorOnFlush = errors.New("bucket gone")

	result := newRun(t, &RunConfig{Input: bytes.NewReader(encodeStream(t, scenario(t)...)), Sink: out})

	if result.Outcome.Status != OutcomeEmitError {
		t.Fatalf("outcome = %+v, want emit_error", result.Outcome)
	}
	if result.Err != out.ErrorOnFlush {
		t.Errorf("Err = %v, want flush error", result.Err)
	}
}

func TestRunOrchestrator_BestEffortPersistence(t *testing.T) {
	notify := &adapter.Stub{Err: errors.New("webhook down")}
	mw := &stubMetricsWriter{err: errors.New("throttled")}
	var logs bytes.Buffer
	logger := log.NewLogger(log.RunContext{RunID: "run-1"}).WithOutput(&logs)

	result := newRun(t, &RunConfig{
		Input:   bytes.NewReader(encodeStream(t, scenario(t)...)),
		Sink:    sink.NewStubSink(),
		Metrics: mw,
		Adapter: notify,
		Logger:  logger,
	})

	if result.Outcome.Status != OutcomeSuccess {
		t.Fatalf("persistence failures must not change the outcome, got %+v", result.Outcome)
	}
	for _, want := range []string{"metrics write failed", "completion notification failed"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %q", want)
		}
	}
}

func TestRunOrchestrator_Engine(t *testing.T) {
	eng := &mockEngine{stdout: bytes.NewReader(encodeStream(t, scenario(t)...)), exitCode: 1}
	out := sink.NewStubSink()

	result := newRun(t, &RunConfig{
		Engine:        &EngineConfig{Command: []string{"engine", "--format", "frames"}},
		EngineFactory: eng.factory(),
		Sink:          out,
	})

	if !eng.started || eng.killed {
		t.Errorf("started = %v, killed = %v; want true, false", eng.started, eng.killed)
	}
	// The engine's own exit code reflects test results, not the conversion.
	if result.Outcome.Status != OutcomeSuccess {
		t.Fatalf("outcome = %+v", result.Outcome)
	}
	if result.EngineExitCode == nil || *result.EngineExitCode != 1 {
		t.Errorf("EngineExitCode = %v, want 1", result.EngineExitCode)
	}
	if result.Report.EngineStderr != "engine log\n" {
		t.Errorf("EngineStderr = %q", result.Report.EngineStderr)
	}
	if len(out.Written) != 6 {
		t.Errorf("wrote %d messages, want 6", len(out.Written))
	}
}

func TestRunOrchestrator_EngineKilledOnError(t *testing.T) {
	eng := &mockEngine{stdout: bytes.NewReader([]byte{0xff, 0xff})}

	result := newRun(t, &RunConfig{
		Engine:        &EngineConfig{Command: []string{"engine"}},
		EngineFactory: eng.factory(),
		Sink:          sink.NewStubSink(),
	})

	if result.Outcome.Status != OutcomeStreamError {
		t.Fatalf("outcome = %+v", result.Outcome)
	}
	if !eng.killed {
		t.Error("engine should be killed after a stream error")
	}
}

func TestRunOrchestrator_EngineStartFailure(t *testing.T) {
	eng := &mockEngine{startErr: errors.New("no such file")}
	collector := metrics.NewCollector("-", "", "run-1")

	result := newRun(t, &RunConfig{
		Engine:        &EngineConfig{Command: []string{"missing-engine"}},
		EngineFactory: eng.factory(),
		Sink:          sink.NewStubSink(),
		Collector:     collector,
	})

	if result.Outcome.Status != OutcomeStreamError {
		t.Fatalf("outcome = %+v", result.Outcome)
	}
	if !strings.Contains(result.Outcome.Message, "failed to start engine") {
		t.Errorf("message = %q", result.Outcome.Message)
	}
	if result.Report == nil || collector.Snapshot().RunsFailed != 1 {
		t.Error("start failure should still produce a report and count a failed run")
	}
}

func TestRunOrchestrator_EngineWaitFailure(t *testing.T) {
	eng := &mockEngine{stdout: bytes.NewReader(nil), waitErr: errors.New("reaped elsewhere")}

	result := newRun(t, &RunConfig{
		Engine:        &EngineConfig{Command: []string{"engine"}},
		EngineFactory: eng.factory(),
		Sink:          sink.NewStubSink(),
	})

	if result.EngineExitCode != nil {
		t.Errorf("EngineExitCode = %v, want nil", *result.EngineExitCode)
	}
}

func TestEngineProcess_Subprocess(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	eng := NewEngineProcess(&EngineConfig{
		Command: []string{"sh", "-c", `echo "$MSGFMT_RUN_ID" >&2; exit 3`},
	}, "run-42")
	if err := eng.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := io.Copy(io.Discard, eng.Stdout()); err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	res, err := eng.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(string(res.StderrBytes)) != "run-42" {
		t.Errorf("stderr = %q, want run id", res.StderrBytes)
	}
}

func TestEngineProcess_WaitBeforeStart(t *testing.T) {
	if _, err := NewEngineProcess(&EngineConfig{Command: []string{"x"}}, "r").Wait(); err == nil {
		t.Error("expected error waiting on an unstarted engine")
	}
}

func TestDeduplicateEnv(t *testing.T) {
	got := deduplicateEnv([]string{"A=1", "B=2", "A=3", "C"})
	want := []string{"B=2", "A=3", "C"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("deduplicateEnv = %v, want %v", got, want)
	}
}

func TestNewRunOrchestrator_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"missing run id", RunConfig{Input: bytes.NewReader(nil), Sink: sink.NewStubSink()}},
		{"missing input", RunConfig{RunID: "r", Sink: sink.NewStubSink()}},
		{"missing sink", RunConfig{RunID: "r", Input: bytes.NewReader(nil)}},
		{"empty engine command", RunConfig{RunID: "r", Engine: &EngineConfig{}, Sink: sink.NewStubSink()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRunOrchestrator(&tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewRunOrchestrator_DefaultFlushTimeout(t *testing.T) {
	cfg := &RunConfig{RunID: "r", Input: bytes.NewReader(nil), Sink: sink.NewStubSink()}
	if _, err := NewRunOrchestrator(cfg); err != nil {
		t.Fatalf("NewRunOrchestrator failed: %v", err)
	}
	if cfg.FlushTimeout != DefaultFlushTimeout {
		t.Errorf("FlushTimeout = %v, want %v", cfg.FlushTimeout, DefaultFlushTimeout)
	}
}
