//nolint:revive // types is a common Go package naming convention
package types

import "time"

// Timestamp is the protocol representation of a point in time.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewTimestamp converts t to a protocol Timestamp.
// Returns nil for the zero time so the field is omitted on the wire.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Duration is the protocol representation of an elapsed time.
type Duration struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewDuration converts d to a protocol Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{
		Seconds: int64(d / time.Second),
		Nanos:   int32(d % time.Second),
	}
}

// AsDuration converts the protocol Duration back to a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos)
}

// Meta describes the producer of a message stream.
type Meta struct {
	ProtocolVersion string   `json:"protocolVersion"`
	Implementation  *Product `json:"implementation,omitempty"`
	Runtime         *Product `json:"runtime,omitempty"`
	OS              *Product `json:"os,omitempty"`
	CPU             *Product `json:"cpu,omitempty"`
}

// Product is a name and optional version.
type Product struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Source is a feature file as read by the engine.
type Source struct {
	URI       string `json:"uri"`
	Data      string `json:"data"`
	MediaType string `json:"mediaType"`
}

// Pickle is a compiled, parameter-substituted scenario.
type Pickle struct {
	ID         string       `json:"id"`
	URI        string       `json:"uri"`
	Name       string       `json:"name"`
	Language   string       `json:"language"`
	Steps      []PickleStep `json:"steps"`
	Tags       []PickleTag  `json:"tags"`
	AstNodeIDs []string     `json:"astNodeIds"`
}

// PickleStep is one step of a pickle.
type PickleStep struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	AstNodeIDs []string `json:"astNodeIds"`
}

// PickleTag is a tag inherited by a pickle.
type PickleTag struct {
	Name      string `json:"name"`
	AstNodeID string `json:"astNodeId"`
}

// SourceReference points at the code or document that defines something.
type SourceReference struct {
	URI      string    `json:"uri,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Location is a line (and optional column) in a source file.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column,omitempty"`
}

// StepDefinitionPattern is the expression a step definition matches with.
type StepDefinitionPattern struct {
	Source string `json:"source"`
	Type   string `json:"type"`
}

// StepDefinition is a user-defined step implementation.
type StepDefinition struct {
	ID              string                `json:"id"`
	Pattern         StepDefinitionPattern `json:"pattern"`
	SourceReference SourceReference       `json:"sourceReference"`
}

// Hook is a before/after hook registered with the engine.
type Hook struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	TagExpression   string          `json:"tagExpression,omitempty"`
	SourceReference SourceReference `json:"sourceReference"`
}

// TestRunStarted marks the beginning of a run.
type TestRunStarted struct {
	Timestamp Timestamp `json:"timestamp"`
}

// TestRunFinished marks the end of a run.
type TestRunFinished struct {
	Success   bool      `json:"success"`
	Timestamp Timestamp `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Attachment is media attached to a test step by user code.
type Attachment struct {
	Body              string `json:"body"`
	ContentEncoding   string `json:"contentEncoding"`
	MediaType         string `json:"mediaType"`
	FileName          string `json:"fileName,omitempty"`
	TestCaseStartedID string `json:"testCaseStartedId,omitempty"`
	TestStepID        string `json:"testStepId,omitempty"`
}

// TestCase is the structural description of a test case.
type TestCase struct {
	ID        string         `json:"id"`
	PickleID  string         `json:"pickleId"`
	TestSteps []TestCaseStep `json:"testSteps"`
}

// TestCaseStep is one step of a test case. A hook step carries only HookID;
// a pickle step carries PickleStepID and StepDefinitionIDs (possibly empty).
type TestCaseStep struct {
	ID                string    `json:"id"`
	HookID            string    `json:"hookId,omitempty"`
	PickleStepID      string    `json:"pickleStepId,omitempty"`
	StepDefinitionIDs *[]string `json:"stepDefinitionIds,omitempty"`
}

// IsHook reports whether the step refers to a hook.
func (s TestCaseStep) IsHook() bool {
	return s.HookID != ""
}

// TestCaseStarted marks the start of one attempt of a test case.
type TestCaseStarted struct {
	ID         string     `json:"id"`
	TestCaseID string     `json:"testCaseId"`
	Timestamp  *Timestamp `json:"timestamp,omitempty"`
}

// TestStepFinished reports the result of one step within an attempt.
type TestStepFinished struct {
	TestStepID        string     `json:"testStepId"`
	TestCaseStartedID string     `json:"testCaseStartedId"`
	TestResult        TestResult `json:"testResult"`
	Timestamp         *Timestamp `json:"timestamp,omitempty"`
}

// TestCaseFinished marks the end of one attempt of a test case.
type TestCaseFinished struct {
	TestCaseStartedID string     `json:"testCaseStartedId"`
	Timestamp         *Timestamp `json:"timestamp,omitempty"`
}

// TestStepResultStatus is the protocol status of a finished step.
type TestStepResultStatus string

// Status constants.
const (
	StatusUnknown   TestStepResultStatus = "UNKNOWN"
	StatusPassed    TestStepResultStatus = "PASSED"
	StatusSkipped   TestStepResultStatus = "SKIPPED"
	StatusPending   TestStepResultStatus = "PENDING"
	StatusUndefined TestStepResultStatus = "UNDEFINED"
	StatusAmbiguous TestStepResultStatus = "AMBIGUOUS"
	StatusFailed    TestStepResultStatus = "FAILED"
)

// TestResult is the protocol form of a step result.
type TestResult struct {
	Status    TestStepResultStatus `json:"status"`
	Duration  Duration             `json:"duration"`
	Message   string               `json:"message,omitempty"`
	Exception *Exception           `json:"exception,omitempty"`
}

// Exception describes an error raised by a failing step.
type Exception struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
