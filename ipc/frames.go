package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/msgfmt/event"
	"github.com/pithecene-io/msgfmt/types"
)

var knownTypes = map[string]bool{
	string(event.KindEnvelope):            true,
	string(event.KindTestCaseReady):       true,
	string(event.KindTestCaseStarted):     true,
	string(event.KindTestStepFinished):    true,
	string(event.KindTestCaseFinished):    true,
	string(event.KindTestCaseCreated):     true,
	string(event.KindTestStepCreated):     true,
	string(event.KindHookTestStepCreated): true,
	string(event.KindStepActivated):       true,
}

// StepFrame is the wire form of event.TestStep.
type StepFrame struct {
	ID   string `msgpack:"id" json:"id"`
	Hook bool   `msgpack:"hook,omitempty" json:"hook,omitempty"`
}

// CaseFrame is the wire form of event.TestCase.
type CaseFrame struct {
	ID    string      `msgpack:"id" json:"id"`
	Steps []StepFrame `msgpack:"steps" json:"steps"`
}

// ResultFrame is the wire form of event.Result.
type ResultFrame struct {
	Status        string `msgpack:"status" json:"status"`
	DurationNanos int64  `msgpack:"duration_ns" json:"duration_ns"`
	Message       string `msgpack:"message,omitempty" json:"message,omitempty"`
	ExceptionType string `msgpack:"exception_type,omitempty" json:"exception_type,omitempty"`
}

// Frame is a single decoded stream frame. Which payload fields are set
// depends on Type:
//
//	envelope                Envelope
//	test_case_ready         TestCase
//	test_case_started       TestCase, At
//	test_step_finished      TestStep, Result, At
//	test_case_finished      TestCase, At
//	test_case_created       TestCase, PickleID
//	test_step_created       TestStep, PickleStepID
//	hook_test_step_created  TestStep, HookID
//	step_activated          TestStep, StepDefinitionID
//
// The JSON tags mirror the msgpack tags so event scripts can be written as
// JSON lines and encoded unchanged.
type Frame struct {
	Type string `msgpack:"type" json:"type"`
	Seq  int64  `msgpack:"seq" json:"seq"`

	// Envelope holds the protocol envelope as JSON bytes.
	Envelope json.RawMessage `msgpack:"envelope,omitempty" json:"envelope,omitempty"`

	TestCase *CaseFrame   `msgpack:"test_case,omitempty" json:"test_case,omitempty"`
	TestStep *StepFrame   `msgpack:"test_step,omitempty" json:"test_step,omitempty"`
	Result   *ResultFrame `msgpack:"result,omitempty" json:"result,omitempty"`

	// At is a Unix timestamp in nanoseconds; zero means not reported.
	At int64 `msgpack:"at,omitempty" json:"at,omitempty"`

	PickleID         string `msgpack:"pickle_id,omitempty" json:"pickle_id,omitempty"`
	PickleStepID     string `msgpack:"pickle_step_id,omitempty" json:"pickle_step_id,omitempty"`
	HookID           string `msgpack:"hook_id,omitempty" json:"hook_id,omitempty"`
	StepDefinitionID string `msgpack:"step_definition_id,omitempty" json:"step_definition_id,omitempty"`
}

// Kind returns the event kind carried by the frame.
func (f *Frame) Kind() event.Kind {
	return event.Kind(f.Type)
}

func (f *Frame) invalid(format string, args ...any) error {
	return &FrameError{
		Kind: FrameErrorInvalid,
		Msg:  fmt.Sprintf("%s frame (seq %d): %s", f.Type, f.Seq, fmt.Sprintf(format, args...)),
	}
}

// Validate checks that the fields required by the frame type are present.
func (f *Frame) Validate() error {
	if !knownTypes[f.Type] {
		return &FrameError{Kind: FrameErrorInvalid, Msg: fmt.Sprintf("unknown frame type %q", f.Type)}
	}

	needCase := func() error {
		if f.TestCase == nil || f.TestCase.ID == "" {
			return f.invalid("test_case.id is required")
		}
		for i, s := range f.TestCase.Steps {
			if s.ID == "" {
				return f.invalid("test_case.steps[%d].id is required", i)
			}
		}
		return nil
	}
	needStep := func() error {
		if f.TestStep == nil || f.TestStep.ID == "" {
			return f.invalid("test_step.id is required")
		}
		return nil
	}

	switch f.Kind() {
	case event.KindEnvelope:
		if len(f.Envelope) == 0 {
			return f.invalid("envelope is required")
		}
	case event.KindTestCaseReady, event.KindTestCaseStarted, event.KindTestCaseFinished:
		return needCase()
	case event.KindTestStepFinished:
		if err := needStep(); err != nil {
			return err
		}
		if f.Result == nil {
			return f.invalid("result is required")
		}
	case event.KindTestCaseCreated:
		if err := needCase(); err != nil {
			return err
		}
		if f.PickleID == "" {
			return f.invalid("pickle_id is required")
		}
	case event.KindTestStepCreated:
		if err := needStep(); err != nil {
			return err
		}
		if f.PickleStepID == "" {
			return f.invalid("pickle_step_id is required")
		}
	case event.KindHookTestStepCreated:
		if err := needStep(); err != nil {
			return err
		}
		if f.HookID == "" {
			return f.invalid("hook_id is required")
		}
	case event.KindStepActivated:
		if err := needStep(); err != nil {
			return err
		}
		if f.StepDefinitionID == "" {
			return f.invalid("step_definition_id is required")
		}
	}
	return nil
}

// Event converts the frame to the event it carries.
// Envelope frames are parsed as protocol envelopes.
func (f *Frame) Event() (event.Event, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	switch f.Kind() {
	case event.KindEnvelope:
		env, err := types.ParseEnvelope(f.Envelope)
		if err != nil {
			return nil, &FrameError{
				Kind: FrameErrorDecode,
				Msg:  fmt.Sprintf("envelope frame (seq %d)", f.Seq),
				Err:  err,
			}
		}
		return event.Envelope{Envelope: env}, nil
	case event.KindTestCaseReady:
		return event.TestCaseReady{TestCase: f.TestCase.toEvent()}, nil
	case event.KindTestCaseStarted:
		return event.TestCaseStarted{TestCase: f.TestCase.toEvent(), At: f.at()}, nil
	case event.KindTestStepFinished:
		return event.TestStepFinished{
			TestStep: f.TestStep.toEvent(),
			Result:   f.Result.toEvent(),
			At:       f.at(),
		}, nil
	case event.KindTestCaseFinished:
		return event.TestCaseFinished{TestCase: f.TestCase.toEvent(), At: f.at()}, nil
	case event.KindTestCaseCreated:
		return event.TestCaseCreated{TestCase: f.TestCase.toEvent(), PickleID: f.PickleID}, nil
	case event.KindTestStepCreated:
		return event.TestStepCreated{TestStep: f.TestStep.toEvent(), PickleStepID: f.PickleStepID}, nil
	case event.KindHookTestStepCreated:
		return event.HookTestStepCreated{TestStep: f.TestStep.toEvent(), HookID: f.HookID}, nil
	default: // event.KindStepActivated
		return event.StepActivated{TestStep: f.TestStep.toEvent(), StepDefinitionID: f.StepDefinitionID}, nil
	}
}

func (f *Frame) at() time.Time {
	if f.At == 0 {
		return time.Time{}
	}
	return time.Unix(0, f.At).UTC()
}

func (c *CaseFrame) toEvent() event.TestCase {
	tc := event.TestCase{ID: c.ID, Steps: make([]event.TestStep, len(c.Steps))}
	for i, s := range c.Steps {
		tc.Steps[i] = s.toEvent()
	}
	return tc
}

func (s *StepFrame) toEvent() event.TestStep {
	return event.TestStep{ID: s.ID, Hook: s.Hook}
}

func (r *ResultFrame) toEvent() event.Result {
	return event.Result{
		Status:        event.Status(r.Status),
		Duration:      time.Duration(r.DurationNanos),
		Message:       r.Message,
		ExceptionType: r.ExceptionType,
	}
}

// FromEvent builds the frame carrying e.
func FromEvent(seq int64, e event.Event) (*Frame, error) {
	f := &Frame{Type: string(e.Kind()), Seq: seq}
	switch ev := e.(type) {
	case event.Envelope:
		if ev.Envelope == nil {
			return nil, fmt.Errorf("envelope event has no envelope")
		}
		data, err := ev.Envelope.MarshalNDJSON()
		if err != nil {
			return nil, err
		}
		f.Envelope = json.RawMessage(data[:len(data)-1])
	case event.TestCaseReady:
		f.TestCase = caseFrame(ev.TestCase)
	case event.TestCaseStarted:
		f.TestCase = caseFrame(ev.TestCase)
		f.At = unixNanos(ev.At)
	case event.TestStepFinished:
		f.TestStep = &StepFrame{ID: ev.TestStep.ID, Hook: ev.TestStep.Hook}
		f.Result = &ResultFrame{
			Status:        string(ev.Result.Status),
			DurationNanos: int64(ev.Result.Duration),
			Message:       ev.Result.Message,
			ExceptionType: ev.Result.ExceptionType,
		}
		f.At = unixNanos(ev.At)
	case event.TestCaseFinished:
		f.TestCase = caseFrame(ev.TestCase)
		f.At = unixNanos(ev.At)
	case event.TestCaseCreated:
		f.TestCase = caseFrame(ev.TestCase)
		f.PickleID = ev.PickleID
	case event.TestStepCreated:
		f.TestStep = &StepFrame{ID: ev.TestStep.ID, Hook: ev.TestStep.Hook}
		f.PickleStepID = ev.PickleStepID
	case event.HookTestStepCreated:
		f.TestStep = &StepFrame{ID: ev.TestStep.ID, Hook: ev.TestStep.Hook}
		f.HookID = ev.HookID
	case event.StepActivated:
		f.TestStep = &StepFrame{ID: ev.TestStep.ID, Hook: ev.TestStep.Hook}
		f.StepDefinitionID = ev.StepDefinitionID
	default:
		return nil, fmt.Errorf("unsupported event type %T", e)
	}
	return f, nil
}

func caseFrame(tc event.TestCase) *CaseFrame {
	c := &CaseFrame{ID: tc.ID, Steps: make([]StepFrame, len(tc.Steps))}
	for i, s := range tc.Steps {
		c.Steps[i] = StepFrame{ID: s.ID, Hook: s.Hook}
	}
	return c
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
