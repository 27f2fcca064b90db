// Package emitter turns execution-engine lifecycle events into protocol
// envelopes and writes them to a sink.
//
// Each handler builds at most one envelope and writes it before returning,
// so the output order is the arrival order of events. The emitter owns the
// correlation table that maps finished steps back to their test case.
package emitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/msgfmt/correlate"
	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/query"
	"github.com/pithecene-io/msgfmt/sink"
	"github.com/pithecene-io/msgfmt/types"
)

// ErrNilEnvelope is returned when a passthrough event carries no envelope.
var ErrNilEnvelope = errors.New("passthrough event carries no envelope")

// Config configures an Emitter.
type Config struct {
	// Resolvers look up hook, pickle, pickle step and step definition ids.
	Resolvers query.Resolvers
	// Sink receives every envelope (required).
	Sink sink.Sink
	// Collector records emission metrics. If nil, nothing is recorded.
	Collector *metrics.Collector
	// Logger receives debug output. If nil, logging is disabled.
	Logger *log.Logger
}

// Emitter handles the five lifecycle events.
//
// Not safe for concurrent use: handlers are invoked by the bus on the
// publisher's goroutine, one event at a time.
type Emitter struct {
	table     *correlate.Table
	resolvers query.Resolvers
	out       sink.Sink
	collector *metrics.Collector
	logger    *log.Logger
}

// New creates an Emitter with an empty correlation table.
func New(cfg Config) (*Emitter, error) {
	if err := cfg.Resolvers.Validate(); err != nil {
		return nil, fmt.Errorf("invalid emitter config: %w", err)
	}
	if cfg.Sink == nil {
		return nil, errors.New("invalid emitter config: sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Emitter{
		table:     correlate.NewTable(),
		resolvers: cfg.Resolvers,
		out:       cfg.Sink,
		collector: cfg.Collector,
		logger:    logger,
	}, nil
}

// Register subscribes the five handlers to bus.
func (e *Emitter) Register(bus *event.Bus) {
	event.On(bus, e.OnEnvelope)
	event.On(bus, e.OnTestCaseReady)
	event.On(bus, e.OnTestCaseStarted)
	event.On(bus, e.OnTestStepFinished)
	event.On(bus, e.OnTestCaseFinished)
}

// Table returns the correlation table.
func (e *Emitter) Table() *correlate.Table {
	return e.table
}

// OnEnvelope forwards a pre-built envelope unchanged. Envelopes built in
// process must carry exactly one payload.
func (e *Emitter) OnEnvelope(ctx context.Context, evt event.Envelope) error {
	if evt.Envelope == nil {
		return ErrNilEnvelope
	}
	if !evt.Envelope.Parsed() {
		if err := evt.Envelope.Validate(); err != nil {
			return fmt.Errorf("passthrough: %w", err)
		}
	}
	if err := e.write(ctx, evt.Envelope); err != nil {
		return err
	}
	e.collector.IncPassthrough()
	return nil
}

// OnTestCaseReady records the test case's steps and emits its structure.
// Steps are recorded before any lookup so that a resolver failure still
// leaves the table complete for the case.
func (e *Emitter) OnTestCaseReady(ctx context.Context, evt event.TestCaseReady) error {
	tc := evt.TestCase
	e.table.Record(tc)
	e.collector.SetCorrelationEntries(e.table.Len())

	pickleID, err := e.resolvers.Pickles.PickleID(tc)
	if err != nil {
		e.collector.IncResolverFailure()
		return err
	}

	steps := make([]types.TestCaseStep, 0, len(tc.Steps))
	for _, step := range tc.Steps {
		built, err := e.buildStep(step)
		if err != nil {
			e.collector.IncResolverFailure()
			return err
		}
		steps = append(steps, built)
	}

	return e.write(ctx, &types.Envelope{TestCase: &types.TestCase{
		ID:        tc.ID,
		PickleID:  pickleID,
		TestSteps: steps,
	}})
}

func (e *Emitter) buildStep(step event.TestStep) (types.TestCaseStep, error) {
	if step.Hook {
		hookID, err := e.resolvers.Hooks.HookID(step)
		if err != nil {
			return types.TestCaseStep{}, err
		}
		return types.TestCaseStep{ID: step.ID, HookID: hookID}, nil
	}

	pickleStepID, err := e.resolvers.PickleSteps.PickleStepID(step)
	if err != nil {
		return types.TestCaseStep{}, err
	}
	defs, err := e.resolvers.StepDefinitions.StepDefinitionIDs(step)
	if err != nil {
		return types.TestCaseStep{}, err
	}
	if defs == nil {
		defs = []string{}
	}
	return types.TestCaseStep{
		ID:                step.ID,
		PickleStepID:      pickleStepID,
		StepDefinitionIDs: &defs,
	}, nil
}

// OnTestCaseStarted emits the start of the case's single attempt.
func (e *Emitter) OnTestCaseStarted(ctx context.Context, evt event.TestCaseStarted) error {
	return e.write(ctx, &types.Envelope{TestCaseStarted: &types.TestCaseStarted{
		ID:         correlate.AttemptID(evt.TestCase.ID),
		TestCaseID: evt.TestCase.ID,
		Timestamp:  types.NewTimestamp(evt.At),
	}})
}

// OnTestStepFinished resolves the step's test case and emits its result.
// A step that was never recorded is a broken event ordering and fails with
// correlate.ErrUnresolved.
func (e *Emitter) OnTestStepFinished(ctx context.Context, evt event.TestStepFinished) error {
	caseID, err := e.table.Resolve(evt.TestStep.ID)
	if err != nil {
		e.collector.IncCorrelationFailure()
		return err
	}

	return e.write(ctx, &types.Envelope{TestStepFinished: &types.TestStepFinished{
		TestStepID:        evt.TestStep.ID,
		TestCaseStartedID: correlate.AttemptID(caseID),
		TestResult:        evt.Result.ToMessage(),
		Timestamp:         types.NewTimestamp(evt.At),
	}})
}

// OnTestCaseFinished emits the end of the case's single attempt.
func (e *Emitter) OnTestCaseFinished(ctx context.Context, evt event.TestCaseFinished) error {
	return e.write(ctx, &types.Envelope{TestCaseFinished: &types.TestCaseFinished{
		TestCaseStartedID: correlate.AttemptID(evt.TestCase.ID),
		Timestamp:         types.NewTimestamp(evt.At),
	}})
}

func (e *Emitter) write(ctx context.Context, env *types.Envelope) error {
	if err := e.out.Write(ctx, env); err != nil {
		return err
	}
	msgType := env.Type()
	e.collector.IncMessageEmitted(string(msgType))
	e.logger.Debug("emitted message", map[string]any{"type": msgType})
	return nil
}
