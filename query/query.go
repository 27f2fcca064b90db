// Package query resolves test steps and test cases to the reference data
// the engine bound them to: hooks, pickles, pickle steps and step definitions.
package query

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/msgfmt/event"
)

// ErrNotFound indicates that no binding exists for the requested key.
var ErrNotFound = errors.New("not found")

// LookupError reports a failed lookup. It matches ErrNotFound via errors.Is.
type LookupError struct {
	// Query names the lookup that failed (e.g. "hook_id").
	Query string
	// Key is the test-step or test-case id that was looked up.
	Key string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: no binding for %q: %v", e.Query, e.Key, ErrNotFound)
}

// Is reports whether target is ErrNotFound.
func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound
}

// HookResolver returns the hook a hook step runs.
type HookResolver interface {
	HookID(step event.TestStep) (string, error)
}

// PickleResolver returns the pickle a test case was compiled from.
type PickleResolver interface {
	PickleID(tc event.TestCase) (string, error)
}

// PickleStepResolver returns the pickle step a test step executes.
type PickleStepResolver interface {
	PickleStepID(step event.TestStep) (string, error)
}

// StepDefinitionResolver returns the step definitions matched by a test step,
// in activation order. An undefined step resolves to an empty, non-nil slice.
type StepDefinitionResolver interface {
	StepDefinitionIDs(step event.TestStep) ([]string, error)
}

// Resolvers bundles the four lookups used to describe a test case.
type Resolvers struct {
	Hooks           HookResolver
	Pickles         PickleResolver
	PickleSteps     PickleStepResolver
	StepDefinitions StepDefinitionResolver
}

// Validate checks that every resolver is set.
func (r Resolvers) Validate() error {
	switch {
	case r.Hooks == nil:
		return errors.New("hook resolver is required")
	case r.Pickles == nil:
		return errors.New("pickle resolver is required")
	case r.PickleSteps == nil:
		return errors.New("pickle step resolver is required")
	case r.StepDefinitions == nil:
		return errors.New("step definition resolver is required")
	}
	return nil
}
