// Package runtime drives a single conversion run: it reads the engine's
// frame stream, dispatches events to the emitter, and settles the outcome.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pithecene-io/msgfmt/adapter"
	"github.com/pithecene-io/msgfmt/emitter"
	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/query"
	"github.com/pithecene-io/msgfmt/sink"
	"github.com/pithecene-io/msgfmt/types"
)

// DefaultFlushTimeout bounds the final flush, metrics write, and notification.
const DefaultFlushTimeout = 30 * time.Second

// MetricsWriter persists the run's metrics snapshot.
type MetricsWriter interface {
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
}

// RunConfig configures a single run.
type RunConfig struct {
	// RunID identifies the run in logs, storage, and notifications.
	RunID string
	// Day is the storage partition day (YYYY-MM-DD); derived from the start time if empty.
	Day string
	// Input is the frame stream. Ignored when Engine is set.
	Input io.Reader
	// Engine, if set, is started and its stdout becomes the frame stream.
	Engine *EngineConfig
	// EngineFactory overrides engine creation (for testing).
	// If nil, uses NewEngineProcess.
	EngineFactory EngineFactory
	// InputName describes the input for logs and the report ("-" for stdin).
	InputName string
	// Sink receives every emitted envelope. The caller owns closing it.
	Sink sink.Sink
	// Output describes where the NDJSON stream goes.
	Output string
	// StoragePath is the Lode location of the run, if storage is enabled.
	StoragePath string
	// Metrics, if set, receives the final metrics snapshot.
	Metrics MetricsWriter
	// FileWriter, if set, receives the run report as a sidecar file.
	FileWriter lode.FileWriter
	// Adapter, if set, is notified when the run completes.
	Adapter adapter.Adapter
	// Collector records run metrics. If nil, no metrics are recorded.
	Collector *metrics.Collector
	// Logger is the run logger. If nil, logging is discarded.
	Logger *log.Logger
	// FlushTimeout bounds post-stream work (default 30s).
	FlushTimeout time.Duration
}

// RunResult represents the result of a run.
type RunResult struct {
	RunID       string
	Input       string
	Output      string
	StoragePath string
	// Outcome is the classified run outcome.
	Outcome *Outcome
	// Err is the error that ended the run, nil on success.
	Err error
	// Duration is the total run duration.
	Duration time.Duration
	// FrameCount is the sequence number of the last frame read in order.
	FrameCount int64
	// FailedSeq is the sequence number of the frame that failed, if any.
	FailedSeq int64
	// EventCounts is the number of accepted frames per event kind.
	EventCounts map[event.Kind]int64
	// TestCases is the number of test cases that became ready.
	TestCases int
	// EngineExitCode is the engine's exit code; nil without an engine.
	EngineExitCode *int
	// EngineStderr is the captured engine stderr.
	EngineStderr string
	// Report is the report built after the run.
	Report *RunReport
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if config.RunID == "" {
		return nil, errors.New("run id is required")
	}
	if config.Input == nil && config.Engine == nil {
		return nil, errors.New("input or engine is required")
	}
	if config.Engine != nil && len(config.Engine.Command) == 0 {
		return nil, errors.New("engine command is empty")
	}
	if config.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultFlushTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Wire the resolver index and emitter onto a fresh bus
//  2. Start the engine, if configured
//  3. Run the ingestion loop until EOF or the first error
//  4. Kill the engine on error, then reap it
//  5. Flush the sink (best effort on failure paths)
//  6. Determine outcome and record metrics
//  7. Persist metrics and report, notify the adapter (best effort)
//
// The returned error is non-nil only if the run could not be set up; run
// failures are reported through RunResult.Outcome and RunResult.Err.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	cfg := r.config
	cfg.Collector.IncRunStarted()

	r.logger.Info("starting run", map[string]any{
		"input":  cfg.InputName,
		"output": cfg.Output,
	})

	bus := event.NewBus()
	index := query.NewIndex()
	index.Register(bus)

	em, err := emitter.New(emitter.Config{
		Resolvers: index.Resolvers(),
		Sink:      cfg.Sink,
		Collector: cfg.Collector,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create emitter: %w", err)
	}
	em.Register(bus)

	input := cfg.Input
	var engine Engine
	if cfg.Engine != nil {
		factory := cfg.EngineFactory
		if factory == nil {
			factory = NewEngineProcess
		}
		engine = factory(cfg.Engine, cfg.RunID)
		if err := engine.Start(ctx); err != nil {
			r.logger.Error("failed to start engine", map[string]any{
				"command": strings.Join(cfg.Engine.Command, " "),
				"error":   err.Error(),
			})
			cfg.Collector.IncRunFailed()
			return r.startFailure(err), nil
		}
		input = engine.Stdout()
	}

	ingestion := NewIngestionEngine(input, bus, r.logger, cfg.Collector)
	ingErr := ingestion.Run(ctx)

	var engineResult *EngineResult
	if engine != nil {
		engineResult = r.reapEngine(engine, ingErr)
	}

	// Post-stream work ignores parent cancellation so buffered messages still land.
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.FlushTimeout)
	defer cancel()

	flushErr := cfg.Sink.Flush(postCtx)
	if flushErr != nil {
		r.logger.Error("sink flush failed", map[string]any{
			"error": flushErr.Error(),
		})
	}

	outcome := DetermineOutcome(ingErr, flushErr)
	cfg.Collector.SetCorrelationEntries(em.Table().Len())
	if outcome.Status == OutcomeSuccess {
		cfg.Collector.IncRunCompleted()
	} else {
		cfg.Collector.IncRunFailed()
	}

	result := r.buildResult(outcome, ingestion)
	if engineResult != nil {
		code := engineResult.ExitCode
		result.EngineExitCode = &code
		result.EngineStderr = string(engineResult.StderrBytes)
	}
	switch {
	case ingErr != nil:
		result.Err = ingErr
		var ingestErr *IngestionError
		if errors.As(ingErr, &ingestErr) {
			result.FailedSeq = ingestErr.Seq
		}
	case flushErr != nil:
		result.Err = flushErr
	}

	r.logger.Info("run completed", map[string]any{
		"outcome":  outcome.Status,
		"frames":   result.FrameCount,
		"duration": result.Duration.String(),
	})

	snap := cfg.Collector.Snapshot()
	result.Report = BuildRunReport(result, snap)
	r.persist(postCtx, snap, result)
	return result, nil
}

// persist writes metrics and the report sidecar, then notifies the adapter.
// Failures are logged; they never change the outcome.
func (r *RunOrchestrator) persist(ctx context.Context, snap metrics.Snapshot, result *RunResult) {
	cfg := r.config

	if cfg.Metrics != nil {
		if err := cfg.Metrics.WriteMetrics(ctx, snap, time.Now()); err != nil {
			r.logger.Warn("metrics write failed (best effort)", map[string]any{
				"error": err.Error(),
			})
		}
	}

	if cfg.FileWriter != nil {
		data, err := MarshalReport(result.Report)
		if err == nil {
			err = cfg.FileWriter.PutFile(ctx, ReportFilename, "application/json", data)
		}
		if err != nil {
			r.logger.Warn("report sidecar write failed (best effort)", map[string]any{
				"error": err.Error(),
			})
		}
	}

	if cfg.Adapter != nil {
		if err := cfg.Adapter.Publish(ctx, r.completedEvent(result)); err != nil {
			r.logger.Warn("completion notification failed (best effort)", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

func (r *RunOrchestrator) completedEvent(result *RunResult) *adapter.RunCompletedEvent {
	day := r.config.Day
	if day == "" {
		day = lode.DeriveDay(r.startTime)
	}
	return &adapter.RunCompletedEvent{
		EventType:       adapter.EventTypeRunCompleted,
		Version:         types.Version,
		ProtocolVersion: types.ProtocolVersion,
		RunID:           result.RunID,
		Day:             day,
		Outcome:         string(result.Outcome.Status),
		Message:         result.Outcome.Message,
		Output:          result.Output,
		StoragePath:     result.StoragePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		FrameCount:      result.FrameCount,
		MessageCount:    r.config.Collector.Snapshot().MessagesEmitted,
		TestCases:       int64(result.TestCases),
		DurationMs:      result.Duration.Milliseconds(),
	}
}

// reapEngine kills the engine if ingestion stopped early, then waits for it.
// Wait must follow ingestion: it closes the stdout pipe.
func (r *RunOrchestrator) reapEngine(engine Engine, ingErr error) *EngineResult {
	if ingErr != nil {
		r.logger.Warn("killing engine due to ingestion error", map[string]any{
			"error": ingErr.Error(),
		})
		_ = engine.Kill()
	}

	res, err := engine.Wait()
	if err != nil {
		r.logger.Error("engine wait failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if res.ExitCode != 0 {
		r.logger.Warn("engine exited non-zero", map[string]any{
			"exit_code": res.ExitCode,
		})
	}
	return res
}

// startFailure builds the result of a run whose engine never started.
func (r *RunOrchestrator) startFailure(err error) *RunResult {
	result := &RunResult{
		RunID:       r.config.RunID,
		Input:       r.config.InputName,
		Output:      r.config.Output,
		StoragePath: r.config.StoragePath,
		Outcome: &Outcome{
			Status:  OutcomeStreamError,
			Message: fmt.Sprintf("failed to start engine: %v", err),
		},
		Err:         err,
		Duration:    time.Since(r.startTime),
		EventCounts: map[event.Kind]int64{},
	}
	result.Report = BuildRunReport(result, r.config.Collector.Snapshot())
	return result
}

// buildResult constructs the final run result.
func (r *RunOrchestrator) buildResult(outcome *Outcome, ingestion *IngestionEngine) *RunResult {
	counts := ingestion.Counts()
	return &RunResult{
		RunID:       r.config.RunID,
		Input:       r.config.InputName,
		Output:      r.config.Output,
		StoragePath: r.config.StoragePath,
		Outcome:     outcome,
		Duration:    time.Since(r.startTime),
		FrameCount:  ingestion.CurrentSeq(),
		EventCounts: counts,
		TestCases:   int(counts[event.KindTestCaseReady]),
	}
}
