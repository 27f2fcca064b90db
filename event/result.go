package event

import (
	"time"

	"github.com/pithecene-io/msgfmt/types"
)

// Status is the engine's outcome for a step.
type Status string

// Engine status constants.
const (
	StatusUnknown   Status = "unknown"
	StatusPassed    Status = "passed"
	StatusSkipped   Status = "skipped"
	StatusPending   Status = "pending"
	StatusUndefined Status = "undefined"
	StatusAmbiguous Status = "ambiguous"
	StatusFailed    Status = "failed"
)

var protocolStatus = map[Status]types.TestStepResultStatus{
	StatusUnknown:   types.StatusUnknown,
	StatusPassed:    types.StatusPassed,
	StatusSkipped:   types.StatusSkipped,
	StatusPending:   types.StatusPending,
	StatusUndefined: types.StatusUndefined,
	StatusAmbiguous: types.StatusAmbiguous,
	StatusFailed:    types.StatusFailed,
}

// Result is the engine's result for a finished step.
type Result struct {
	Status   Status
	Duration time.Duration
	// Message is the failure message or pending/skip reason, if any.
	Message string
	// ExceptionType is the error class name for failed steps.
	ExceptionType string
}

// ToMessage converts the result to its protocol form.
// Unrecognized statuses map to UNKNOWN.
func (r Result) ToMessage() types.TestResult {
	status, ok := protocolStatus[r.Status]
	if !ok {
		status = types.StatusUnknown
	}

	msg := types.TestResult{
		Status:   status,
		Duration: types.NewDuration(r.Duration),
		Message:  r.Message,
	}
	if r.ExceptionType != "" {
		msg.Exception = &types.Exception{
			Type:    r.ExceptionType,
			Message: r.Message,
		}
	}
	return msg
}
