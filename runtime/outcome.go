package runtime

import (
	"fmt"
)

// OutcomeStatus is the result category of a run.
type OutcomeStatus string

// Outcome statuses.
const (
	// OutcomeSuccess means the stream ended cleanly and every message was written.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeStreamError means the engine broke the frame contract.
	OutcomeStreamError OutcomeStatus = "stream_error"
	// OutcomeEmitError means a message could not be built or written.
	OutcomeEmitError OutcomeStatus = "emit_error"
	// OutcomeCanceled means the run was interrupted.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// Process exit codes.
const (
	ExitCodeSuccess = 0 // stream converted
	ExitCodeUsage   = 1 // invalid flags or configuration
	ExitCodeStream  = 2 // stream error or cancellation
	ExitCodeEmit    = 3 // correlation, resolver, or sink failure
)

// ExitCode maps the status to the process exit code.
func (s OutcomeStatus) ExitCode() int {
	switch s {
	case OutcomeSuccess:
		return ExitCodeSuccess
	case OutcomeEmitError:
		return ExitCodeEmit
	default:
		return ExitCodeStream
	}
}

// Outcome is the classified result of a run.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// DetermineOutcome classifies a run from its ingestion and final flush errors.
// An ingestion error takes precedence; a flush failure after a clean stream is
// an emit error because buffered messages were lost.
func DetermineOutcome(ingErr, flushErr error) *Outcome {
	switch {
	case ingErr == nil && flushErr == nil:
		return &Outcome{Status: OutcomeSuccess, Message: "stream converted"}
	case ingErr == nil:
		return &Outcome{Status: OutcomeEmitError, Message: fmt.Sprintf("sink flush failed: %v", flushErr)}
	case IsEmitError(ingErr):
		return &Outcome{Status: OutcomeEmitError, Message: fmt.Sprintf("emit failure: %v", ingErr)}
	case IsCanceledError(ingErr):
		return &Outcome{Status: OutcomeCanceled, Message: fmt.Sprintf("run canceled: %v", ingErr)}
	default:
		return &Outcome{Status: OutcomeStreamError, Message: fmt.Sprintf("stream error: %v", ingErr)}
	}
}
