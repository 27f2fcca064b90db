package types //nolint:revive // types is a valid package name

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEnvelope_Type(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want MessageType
	}{
		{"empty", Envelope{}, ""},
		{"meta", Envelope{Meta: &Meta{ProtocolVersion: ProtocolVersion}}, MessageTypeMeta},
		{"pickle", Envelope{Pickle: &Pickle{ID: "p1"}}, MessageTypePickle},
		{"test case", Envelope{TestCase: &TestCase{ID: "c1"}}, MessageTypeTestCase},
		{"started", Envelope{TestCaseStarted: &TestCaseStarted{ID: "c1-0"}}, MessageTypeTestCaseStarted},
		{"step finished", Envelope{TestStepFinished: &TestStepFinished{TestStepID: "s1"}}, MessageTypeTestStepFinished},
		{"finished", Envelope{TestCaseFinished: &TestCaseFinished{TestCaseStartedID: "c1-0"}}, MessageTypeTestCaseFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.Type(); got != tt.want {
				t.Errorf("Type() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvelope_Validate(t *testing.T) {
	if err := (&Envelope{}).Validate(); !errors.Is(err, ErrEmptyEnvelope) {
		t.Errorf("empty envelope: got %v, want ErrEmptyEnvelope", err)
	}

	single := &Envelope{Hook: &Hook{ID: "h1"}}
	if err := single.Validate(); err != nil {
		t.Errorf("single payload: unexpected error %v", err)
	}

	double := &Envelope{Hook: &Hook{ID: "h1"}, Pickle: &Pickle{ID: "p1"}}
	if err := double.Validate(); !errors.Is(err, ErrAmbiguousEnvelope) {
		t.Errorf("two payloads: got %v, want ErrAmbiguousEnvelope", err)
	}
}

func TestEnvelope_WriteNDJSON(t *testing.T) {
	env := &Envelope{TestCaseStarted: &TestCaseStarted{ID: "c1-0", TestCaseID: "c1"}}

	var buf bytes.Buffer
	if err := env.WriteNDJSON(&buf); err != nil {
		t.Fatalf("WriteNDJSON failed: %v", err)
	}

	want := `{"testCaseStarted":{"id":"c1-0","testCaseId":"c1"}}` + "\n"
	if buf.String() != want {
		t.Errorf("WriteNDJSON = %q, want %q", buf.String(), want)
	}
}

func TestTestCaseStep_WireShape(t *testing.T) {
	empty := []string{}
	env := &Envelope{TestCase: &TestCase{
		ID:       "c1",
		PickleID: "p1",
		TestSteps: []TestCaseStep{
			{ID: "s0", HookID: "h1"},
			{ID: "s1", PickleStepID: "ps1", StepDefinitionIDs: &empty},
		},
	}}

	line, err := env.MarshalNDJSON()
	if err != nil {
		t.Fatalf("MarshalNDJSON failed: %v", err)
	}

	got := string(line)
	want := `{"testCase":{"id":"c1","pickleId":"p1","testSteps":[` +
		`{"id":"s0","hookId":"h1"},` +
		`{"id":"s1","pickleStepId":"ps1","stepDefinitionIds":[]}]}}` + "\n"
	if got != want {
		t.Errorf("wire shape:\n got %s\nwant %s", got, want)
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"source":{"uri":"a.feature","data":"Feature: a","mediaType":"text/x.cucumber.gherkin+plain"}}`))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if env.Type() != MessageTypeSource {
		t.Errorf("Type() = %q, want %q", env.Type(), MessageTypeSource)
	}
	if env.Source.URI != "a.feature" {
		t.Errorf("Source.URI = %q, want a.feature", env.Source.URI)
	}

	if _, err := ParseEnvelope([]byte(`{}`)); !errors.Is(err, ErrEmptyEnvelope) {
		t.Errorf("empty object: got %v, want ErrEmptyEnvelope", err)
	}
	if _, err := ParseEnvelope([]byte(`{`)); err == nil || !strings.Contains(err.Error(), "invalid envelope JSON") {
		t.Errorf("truncated JSON: got %v", err)
	}
}

func TestParseEnvelope_ForwardsInputUnchanged(t *testing.T) {
	// extraField is not modeled by Meta and must survive the round trip.
	input := "{\"meta\": {\"protocolVersion\": \"27.0.0\",\n \"extraField\": [1, 2]}}"

	env, err := ParseEnvelope([]byte(input))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}

	var buf bytes.Buffer
	if err := env.WriteNDJSON(&buf); err != nil {
		t.Fatalf("WriteNDJSON failed: %v", err)
	}
	want := `{"meta":{"protocolVersion":"27.0.0","extraField":[1,2]}}` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestParseEnvelope_KeepsSingleLineInputVerbatim(t *testing.T) {
	input := `{"meta": {"protocolVersion": "27.0.0", "implementation": {"name": "x"}}}`

	env, err := ParseEnvelope([]byte("  " + input + "\r\n"))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	line, err := env.MarshalNDJSON()
	if err != nil {
		t.Fatalf("MarshalNDJSON failed: %v", err)
	}
	if string(line) != input+"\n" {
		t.Errorf("got %q, want %q", line, input+"\n")
	}
}

func TestParseEnvelope_OpenMessageTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType MessageType
		wantErr  error
		errText  string
	}{
		{
			name:     "gherkin document",
			input:    `{"gherkinDocument":{"uri":"a.feature","comments":[]}}`,
			wantType: "gherkinDocument",
		},
		{
			name:     "parameter type",
			input:    `{"parameterType":{"id":"1","name":"color","regularExpressions":["red|blue"]}}`,
			wantType: "parameterType",
		},
		{
			name:     "null members ignored",
			input:    `{"meta":null,"testRunHookStarted":{"id":"h1"}}`,
			wantType: "testRunHookStarted",
		},
		{
			name:     "modeled type",
			input:    `{"testRunStarted":{"timestamp":{"seconds":1,"nanos":0}}}`,
			wantType: MessageTypeTestRunStarted,
		},
		{
			name:    "only null members",
			input:   `{"parseError":null}`,
			wantErr: ErrEmptyEnvelope,
		},
		{
			name:    "two members",
			input:   `{"parseError":{"message":"x"},"source":{"uri":"a"}}`,
			wantErr: ErrAmbiguousEnvelope,
		},
		{
			name:    "array",
			input:   `[{"meta":{}}]`,
			errText: "invalid envelope JSON",
		},
		{
			name:    "null",
			input:   `null`,
			errText: "invalid envelope JSON",
		},
		{
			name:    "malformed modeled payload",
			input:   `{"meta":"27.0.0"}`,
			errText: "invalid meta envelope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.input))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("got %v, want error containing %q", err, tt.errText)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnvelope failed: %v", err)
			}
			if env.Type() != tt.wantType {
				t.Errorf("Type() = %q, want %q", env.Type(), tt.wantType)
			}
			if !env.Parsed() {
				t.Error("Parsed() = false, want true")
			}
			if err := env.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			line, err := env.MarshalNDJSON()
			if err != nil {
				t.Fatalf("MarshalNDJSON failed: %v", err)
			}
			if string(line) != tt.input+"\n" {
				t.Errorf("got %q, want %q", line, tt.input+"\n")
			}
		})
	}
}

func TestTimestampAndDuration(t *testing.T) {
	if NewTimestamp(time.Time{}) != nil {
		t.Error("zero time should convert to nil timestamp")
	}

	ts := NewTimestamp(time.Unix(1700000000, 250))
	if ts.Seconds != 1700000000 || ts.Nanos != 250 {
		t.Errorf("timestamp = %+v", ts)
	}

	d := NewDuration(1500 * time.Millisecond)
	if d.Seconds != 1 || d.Nanos != 500_000_000 {
		t.Errorf("duration = %+v", d)
	}
	if d.AsDuration() != 1500*time.Millisecond {
		t.Errorf("AsDuration() = %v", d.AsDuration())
	}
}
