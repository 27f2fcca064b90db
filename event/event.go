// Package event defines the execution-engine lifecycle events consumed by
// msgfmt and the synchronous bus that dispatches them.
package event

import (
	"time"

	"github.com/pithecene-io/msgfmt/types"
)

// Kind is the event kind discriminator.
type Kind string

// Lifecycle event kinds handled by the emitter.
const (
	KindEnvelope         Kind = "envelope"
	KindTestCaseReady    Kind = "test_case_ready"
	KindTestCaseStarted  Kind = "test_case_started"
	KindTestStepFinished Kind = "test_step_finished"
	KindTestCaseFinished Kind = "test_case_finished"
)

// Binding event kinds. These carry the reference data consumed by the
// identifier resolvers; they produce no output of their own.
const (
	KindTestCaseCreated     Kind = "test_case_created"
	KindTestStepCreated     Kind = "test_step_created"
	KindHookTestStepCreated Kind = "hook_test_step_created"
	KindStepActivated       Kind = "step_activated"
)

// IsLifecycle returns true if the kind produces an outgoing message.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindEnvelope, KindTestCaseReady, KindTestCaseStarted, KindTestStepFinished, KindTestCaseFinished:
		return true
	default:
		return false
	}
}

// Event is implemented by every event type.
type Event interface {
	Kind() Kind
}

// TestStep is a step of a test case as seen by the engine.
type TestStep struct {
	// ID is the opaque step identifier.
	ID string
	// Hook distinguishes hook steps from pickle steps.
	Hook bool
}

// TestCase is a test case as seen by the engine. Steps are in execution order.
type TestCase struct {
	ID    string
	Steps []TestStep
}

// Envelope is a pre-built protocol message to be forwarded unchanged.
type Envelope struct {
	Envelope *types.Envelope
}

// TestCaseReady is raised once a test case is fully bound and about to run.
type TestCaseReady struct {
	TestCase TestCase
}

// TestCaseStarted is raised when a test case begins executing.
type TestCaseStarted struct {
	TestCase TestCase
	// At is when the case started. Zero if the engine did not report it.
	At time.Time
}

// TestStepFinished is raised when a step completes.
type TestStepFinished struct {
	TestStep TestStep
	Result   Result
	At       time.Time
}

// TestCaseFinished is raised when a test case completes.
type TestCaseFinished struct {
	TestCase TestCase
	At       time.Time
}

// TestCaseCreated binds a test case to the pickle it was compiled from.
type TestCaseCreated struct {
	TestCase TestCase
	PickleID string
}

// TestStepCreated binds a pickle step of a test case to its pickle step.
type TestStepCreated struct {
	TestStep     TestStep
	PickleStepID string
}

// HookTestStepCreated binds a hook step of a test case to its hook.
type HookTestStepCreated struct {
	TestStep TestStep
	HookID   string
}

// StepActivated records that a step definition matched a test step.
// Raised once per match; an ambiguous step is activated more than once.
type StepActivated struct {
	TestStep         TestStep
	StepDefinitionID string
}

func (Envelope) Kind() Kind            { return KindEnvelope }
func (TestCaseReady) Kind() Kind       { return KindTestCaseReady }
func (TestCaseStarted) Kind() Kind     { return KindTestCaseStarted }
func (TestStepFinished) Kind() Kind    { return KindTestStepFinished }
func (TestCaseFinished) Kind() Kind    { return KindTestCaseFinished }
func (TestCaseCreated) Kind() Kind     { return KindTestCaseCreated }
func (TestStepCreated) Kind() Kind     { return KindTestStepCreated }
func (HookTestStepCreated) Kind() Kind { return KindHookTestStepCreated }
func (StepActivated) Kind() Kind       { return KindStepActivated }
