package reader

import (
	"fmt"

	"github.com/pithecene-io/msgfmt/types"
)

// statusRank orders step statuses from least to most severe.
// A case takes the most severe status among its finished steps.
var statusRank = map[types.TestStepResultStatus]int{
	types.StatusUnknown:   0,
	types.StatusPassed:    1,
	types.StatusSkipped:   2,
	types.StatusPending:   3,
	types.StatusUndefined: 4,
	types.StatusAmbiguous: 5,
	types.StatusFailed:    6,
}

// Build rebuilds the timeline from messages in emission order.
//
// Definitions (pickles, hooks, meta) are indexed first, so their position
// in the stream does not matter. Execution messages are then applied in
// order. Unresolvable references are collected in Timeline.Issues rather
// than failing the build.
func Build(runID string, envs []*types.Envelope) *Timeline {
	tl := &Timeline{
		RunID:    runID,
		Messages: len(envs),
		Cases:    []CaseView{},
		Summary:  Summary{ByStatus: map[string]int{}},
	}

	pickles := make(map[string]*types.Pickle)
	pickleSteps := make(map[string]string)
	hooks := make(map[string]*types.Hook)
	for _, env := range envs {
		switch {
		case env.Meta != nil:
			tl.ProtocolVersion = env.Meta.ProtocolVersion
		case env.Pickle != nil:
			pickles[env.Pickle.ID] = env.Pickle
			for _, ps := range env.Pickle.Steps {
				pickleSteps[ps.ID] = ps.Text
			}
		case env.Hook != nil:
			hooks[env.Hook.ID] = env.Hook
		}
	}

	caseIndex := make(map[string]int)
	attempts := make(map[string]int)
	stepIndex := make(map[int]map[string]int)
	worst := make(map[int]types.TestStepResultStatus)

	issue := func(format string, args ...any) {
		tl.Issues = append(tl.Issues, fmt.Sprintf(format, args...))
	}

	for _, env := range envs {
		switch {
		case env.TestCase != nil:
			tc := env.TestCase
			cv := CaseView{
				TestCaseID: tc.ID,
				PickleID:   tc.PickleID,
				Status:     StatusNotStarted,
				Steps:      make([]StepView, 0, len(tc.TestSteps)),
			}
			if p, ok := pickles[tc.PickleID]; ok {
				cv.Name = p.Name
				cv.URI = p.URI
			} else {
				issue("testCase %q references unknown pickle %q", tc.ID, tc.PickleID)
			}
			steps := make(map[string]int, len(tc.TestSteps))
			for i, s := range tc.TestSteps {
				cv.Steps = append(cv.Steps, stepView(s, pickleSteps, hooks))
				steps[s.ID] = i
			}
			caseIndex[tc.ID] = len(tl.Cases)
			stepIndex[len(tl.Cases)] = steps
			tl.Cases = append(tl.Cases, cv)

		case env.TestCaseStarted != nil:
			tcs := env.TestCaseStarted
			idx, ok := caseIndex[tcs.TestCaseID]
			if !ok {
				issue("testCaseStarted %q references unknown testCase %q", tcs.ID, tcs.TestCaseID)
				continue
			}
			attempts[tcs.ID] = idx
			tl.Cases[idx].AttemptID = tcs.ID
			tl.Cases[idx].Status = StatusRunning
			tl.Summary.Started++

		case env.TestStepFinished != nil:
			tsf := env.TestStepFinished
			idx, ok := attempts[tsf.TestCaseStartedID]
			if !ok {
				issue("testStepFinished for step %q references unknown attempt %q", tsf.TestStepID, tsf.TestCaseStartedID)
				continue
			}
			si, ok := stepIndex[idx][tsf.TestStepID]
			if !ok {
				issue("testStepFinished references step %q not in testCase %q", tsf.TestStepID, tl.Cases[idx].TestCaseID)
				continue
			}
			step := &tl.Cases[idx].Steps[si]
			step.Status = string(tsf.TestResult.Status)
			step.DurationMs = tsf.TestResult.Duration.AsDuration().Milliseconds()
			step.Message = tsf.TestResult.Message
			tl.Cases[idx].DurationMs += step.DurationMs
			tl.Summary.Steps++
			tl.Summary.ByStatus[step.Status]++
			if cur, seen := worst[idx]; !seen || statusRank[tsf.TestResult.Status] > statusRank[cur] {
				worst[idx] = tsf.TestResult.Status
			}

		case env.TestCaseFinished != nil:
			tcf := env.TestCaseFinished
			idx, ok := attempts[tcf.TestCaseStartedID]
			if !ok {
				issue("testCaseFinished references unknown attempt %q", tcf.TestCaseStartedID)
				continue
			}
			tl.Cases[idx].Finished = true
			tl.Summary.Finished++
		}
	}

	for idx := range tl.Cases {
		if s, ok := worst[idx]; ok {
			tl.Cases[idx].Status = string(s)
		} else if tl.Cases[idx].Finished {
			tl.Cases[idx].Status = string(types.StatusUnknown)
		}
	}
	tl.Summary.TestCases = len(tl.Cases)
	return tl
}

func stepView(s types.TestCaseStep, pickleSteps map[string]string, hooks map[string]*types.Hook) StepView {
	sv := StepView{StepID: s.ID, Status: StatusNotRun}
	if s.IsHook() {
		sv.Kind = StepKindHook
		sv.Text = s.HookID
		if h, ok := hooks[s.HookID]; ok && h.Name != "" {
			sv.Text = h.Name
		}
		return sv
	}
	sv.Kind = StepKindStep
	sv.Text = pickleSteps[s.PickleStepID]
	if s.StepDefinitionIDs != nil {
		sv.StepDefinitionIDs = *s.StepDefinitionIDs
	}
	return sv
}
