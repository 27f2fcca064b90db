// Package types defines the message protocol schema emitted by msgfmt.
//
// An Envelope wraps exactly one payload variant and is serialized as a single
// NDJSON record.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// MessageType names the payload variant carried by an Envelope.
// Values match the envelope's JSON field names.
type MessageType string

// Message type constants.
const (
	MessageTypeMeta             MessageType = "meta"
	MessageTypeSource           MessageType = "source"
	MessageTypePickle           MessageType = "pickle"
	MessageTypeStepDefinition   MessageType = "stepDefinition"
	MessageTypeHook             MessageType = "hook"
	MessageTypeTestRunStarted   MessageType = "testRunStarted"
	MessageTypeTestRunFinished  MessageType = "testRunFinished"
	MessageTypeAttachment       MessageType = "attachment"
	MessageTypeTestCase         MessageType = "testCase"
	MessageTypeTestCaseStarted  MessageType = "testCaseStarted"
	MessageTypeTestStepFinished MessageType = "testStepFinished"
	MessageTypeTestCaseFinished MessageType = "testCaseFinished"
)

// ErrEmptyEnvelope is returned when an envelope carries no payload.
var ErrEmptyEnvelope = errors.New("envelope carries no payload")

// ErrAmbiguousEnvelope is returned when an envelope carries more than one payload.
var ErrAmbiguousEnvelope = errors.New("envelope carries more than one payload")

// Envelope is the top-level protocol wrapper. Exactly one field is set.
//
// Field names and JSON tags follow the message protocol schema; the envelope
// is serialized as one JSON object per line (NDJSON).
type Envelope struct {
	Meta             *Meta             `json:"meta,omitempty"`
	Source           *Source           `json:"source,omitempty"`
	Pickle           *Pickle           `json:"pickle,omitempty"`
	StepDefinition   *StepDefinition   `json:"stepDefinition,omitempty"`
	Hook             *Hook             `json:"hook,omitempty"`
	TestRunStarted   *TestRunStarted   `json:"testRunStarted,omitempty"`
	TestRunFinished  *TestRunFinished  `json:"testRunFinished,omitempty"`
	Attachment       *Attachment       `json:"attachment,omitempty"`
	TestCase         *TestCase         `json:"testCase,omitempty"`
	TestCaseStarted  *TestCaseStarted  `json:"testCaseStarted,omitempty"`
	TestStepFinished *TestStepFinished `json:"testStepFinished,omitempty"`
	TestCaseFinished *TestCaseFinished `json:"testCaseFinished,omitempty"`

	// raw is the source JSON of a parsed envelope and rawType its single
	// top-level key, which may name a payload this package does not model.
	raw     []byte
	rawType MessageType
}

// payloads lists the variant slots in declaration order.
func (e *Envelope) payloads() []struct {
	typ MessageType
	set bool
} {
	return []struct {
		typ MessageType
		set bool
	}{
		{MessageTypeMeta, e.Meta != nil},
		{MessageTypeSource, e.Source != nil},
		{MessageTypePickle, e.Pickle != nil},
		{MessageTypeStepDefinition, e.StepDefinition != nil},
		{MessageTypeHook, e.Hook != nil},
		{MessageTypeTestRunStarted, e.TestRunStarted != nil},
		{MessageTypeTestRunFinished, e.TestRunFinished != nil},
		{MessageTypeAttachment, e.Attachment != nil},
		{MessageTypeTestCase, e.TestCase != nil},
		{MessageTypeTestCaseStarted, e.TestCaseStarted != nil},
		{MessageTypeTestStepFinished, e.TestStepFinished != nil},
		{MessageTypeTestCaseFinished, e.TestCaseFinished != nil},
	}
}

// Type returns the payload variant carried by the envelope.
// Returns an empty MessageType if no payload is set.
func (e *Envelope) Type() MessageType {
	if e.raw != nil {
		return e.rawType
	}
	for _, p := range e.payloads() {
		if p.set {
			return p.typ
		}
	}
	return ""
}

// Parsed reports whether the envelope came from ParseEnvelope and is
// forwarded as its source JSON.
func (e *Envelope) Parsed() bool {
	return e.raw != nil
}

// Validate checks that exactly one payload is set. A parsed envelope was
// checked for a single top-level key when it was parsed.
func (e *Envelope) Validate() error {
	if e.raw != nil {
		return nil
	}
	var set []MessageType
	for _, p := range e.payloads() {
		if p.set {
			set = append(set, p.typ)
		}
	}
	switch len(set) {
	case 0:
		return ErrEmptyEnvelope
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrAmbiguousEnvelope, set)
	}
}

// MarshalNDJSON returns the envelope as a single newline-terminated JSON record.
// An envelope obtained from ParseEnvelope reproduces its input JSON,
// including payloads and fields this package does not model.
func (e *Envelope) MarshalNDJSON() ([]byte, error) {
	if e.raw != nil {
		line := make([]byte, 0, len(e.raw)+1)
		line = append(line, e.raw...)
		return append(line, '\n'), nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", e.Type(), err)
	}
	return append(data, '\n'), nil
}

// WriteNDJSON writes the envelope to w as one NDJSON record.
// The record is handed to w in a single Write call.
func (e *Envelope) WriteNDJSON(w io.Writer) error {
	line, err := e.MarshalNDJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// ParseEnvelope decodes a single JSON envelope.
//
// The envelope must be a JSON object with exactly one non-null member; its
// key becomes the message type, modeled or not. Known payloads are decoded
// into their fields. The input is retained so the envelope can be forwarded
// unchanged: surrounding whitespace is dropped, and an input spanning several
// lines is compacted onto one.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("invalid envelope JSON: %w", err)
	}
	if members == nil {
		return nil, errors.New("invalid envelope JSON: not an object")
	}
	var keys []string
	for k, v := range members {
		if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			keys = append(keys, k)
		}
	}
	switch len(keys) {
	case 0:
		return nil, ErrEmptyEnvelope
	case 1:
	default:
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: %v", ErrAmbiguousEnvelope, keys)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid %s envelope: %w", keys[0], err)
	}
	env.rawType = MessageType(keys[0])

	trimmed := bytes.TrimSpace(data)
	if bytes.ContainsAny(trimmed, "\r\n") {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, fmt.Errorf("invalid envelope JSON: %w", err)
		}
		env.raw = compact.Bytes()
	} else {
		env.raw = bytes.Clone(trimmed)
	}
	return &env, nil
}
