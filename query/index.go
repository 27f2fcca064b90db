package query

import (
	"context"

	"github.com/pithecene-io/msgfmt/event"
)

// Index is an in-memory implementation of all four resolvers.
// It is filled from binding events published earlier in the run.
//
// Like the correlation table, Index is written and read from the single
// dispatch goroutine and takes no locks.
type Index struct {
	pickleByCase     map[string]string
	hookByStep       map[string]string
	pickleStepByStep map[string]string
	stepDefsByStep   map[string][]string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		pickleByCase:     make(map[string]string),
		hookByStep:       make(map[string]string),
		pickleStepByStep: make(map[string]string),
		stepDefsByStep:   make(map[string][]string),
	}
}

// Resolvers returns the index as a Resolvers bundle.
func (x *Index) Resolvers() Resolvers {
	return Resolvers{
		Hooks:           x,
		Pickles:         x,
		PickleSteps:     x,
		StepDefinitions: x,
	}
}

// Register subscribes the index to the binding events on bus.
func (x *Index) Register(bus *event.Bus) {
	event.On(bus, func(_ context.Context, e event.TestCaseCreated) error {
		x.BindPickle(e.TestCase.ID, e.PickleID)
		return nil
	})
	event.On(bus, func(_ context.Context, e event.TestStepCreated) error {
		x.BindPickleStep(e.TestStep.ID, e.PickleStepID)
		return nil
	})
	event.On(bus, func(_ context.Context, e event.HookTestStepCreated) error {
		x.BindHook(e.TestStep.ID, e.HookID)
		return nil
	})
	event.On(bus, func(_ context.Context, e event.StepActivated) error {
		x.ActivateStepDefinition(e.TestStep.ID, e.StepDefinitionID)
		return nil
	})
}

// BindPickle records the pickle a test case was compiled from.
func (x *Index) BindPickle(testCaseID, pickleID string) {
	x.pickleByCase[testCaseID] = pickleID
}

// BindHook records the hook a hook step runs.
func (x *Index) BindHook(testStepID, hookID string) {
	x.hookByStep[testStepID] = hookID
}

// BindPickleStep records the pickle step a test step executes and starts
// an empty step-definition list for it.
func (x *Index) BindPickleStep(testStepID, pickleStepID string) {
	x.pickleStepByStep[testStepID] = pickleStepID
	x.stepDefsByStep[testStepID] = []string{}
}

// ActivateStepDefinition appends a matched step definition to a test step.
func (x *Index) ActivateStepDefinition(testStepID, stepDefinitionID string) {
	x.stepDefsByStep[testStepID] = append(x.stepDefsByStep[testStepID], stepDefinitionID)
}

// HookID implements HookResolver.
func (x *Index) HookID(step event.TestStep) (string, error) {
	id, ok := x.hookByStep[step.ID]
	if !ok {
		return "", &LookupError{Query: "hook_id", Key: step.ID}
	}
	return id, nil
}

// PickleID implements PickleResolver.
func (x *Index) PickleID(tc event.TestCase) (string, error) {
	id, ok := x.pickleByCase[tc.ID]
	if !ok {
		return "", &LookupError{Query: "pickle_id", Key: tc.ID}
	}
	return id, nil
}

// PickleStepID implements PickleStepResolver.
func (x *Index) PickleStepID(step event.TestStep) (string, error) {
	id, ok := x.pickleStepByStep[step.ID]
	if !ok {
		return "", &LookupError{Query: "pickle_step_id", Key: step.ID}
	}
	return id, nil
}

// StepDefinitionIDs implements StepDefinitionResolver.
// The returned slice is a copy.
func (x *Index) StepDefinitionIDs(step event.TestStep) ([]string, error) {
	ids, ok := x.stepDefsByStep[step.ID]
	if !ok {
		return nil, &LookupError{Query: "step_definition_ids", Key: step.ID}
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Verify Index implements the resolver interfaces.
var (
	_ HookResolver           = (*Index)(nil)
	_ PickleResolver         = (*Index)(nil)
	_ PickleStepResolver     = (*Index)(nil)
	_ StepDefinitionResolver = (*Index)(nil)
)
