// Package correlate maps test steps to the test cases that own them.
//
// The table is filled when a test case becomes ready and read whenever one
// of its steps finishes. Entries are never removed: step ids are unique per
// process, so the table grows for the lifetime of the adapter.
package correlate

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/msgfmt/event"
)

// AttemptSuffix is appended to a test case id to form the id of its
// (only) execution attempt.
const AttemptSuffix = "-0"

// ErrUnresolved is returned when a step id was never recorded.
// It means the engine broke the ready-before-step-finished ordering and is
// fatal to the run.
var ErrUnresolved = errors.New("unresolved test step")

// AttemptID returns the test-case-started id for a test case.
// Attempt index is always 0; retries are not correlated.
func AttemptID(testCaseID string) string {
	return testCaseID + AttemptSuffix
}

// Table maps test-step ids to test-case ids.
//
// Not safe for concurrent use: Record and Resolve are called from the single
// goroutine that dispatches a run's events.
type Table struct {
	caseByStep map[string]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{caseByStep: make(map[string]string)}
}

// Record maps every step of tc to tc.ID, overwriting stale entries.
func (t *Table) Record(tc event.TestCase) {
	for _, step := range tc.Steps {
		t.caseByStep[step.ID] = tc.ID
	}
}

// Resolve returns the id of the test case that owns stepID.
func (t *Table) Resolve(stepID string) (string, error) {
	caseID, ok := t.caseByStep[stepID]
	if !ok {
		return "", fmt.Errorf("%w: %q has no recorded test case", ErrUnresolved, stepID)
	}
	return caseID, nil
}

// Len returns the number of recorded steps.
func (t *Table) Len() int {
	return len(t.caseByStep)
}
