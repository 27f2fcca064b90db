package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	prev := BaseBackoff
	BaseBackoff = time.Millisecond
	t.Cleanup(func() { BaseBackoff = prev })
}

func TestRetry(t *testing.T) {
	fastBackoff(t)
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		retries   int
		failures  int
		failWith  error
		wantCalls int
		wantErr   string
	}{
		{"first attempt succeeds", 3, 0, errTransient, 1, ""},
		{"succeeds after retries", 3, 2, errTransient, 3, ""},
		{"exhausts retries", 2, 10, errTransient, 3, "failed after 3 attempts"},
		{"no retries", 0, 10, errTransient, 1, "failed after 1 attempts"},
		{"permanent stops early", 5, 10, errFatal, 1, "non-retriable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), "test", tt.retries, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			}, func(err error) bool { return errors.Is(err, errFatal) })

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
			if !errors.Is(err, tt.failWith) {
				t.Errorf("error should wrap %v", tt.failWith)
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0
	err := Retry(ctx, "test", 3, func(context.Context) error {
		calls++
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestStub(t *testing.T) {
	s := &Stub{}
	if err := s.Publish(t.Context(), &RunCompletedEvent{RunID: "r1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	_ = s.Close()
	if len(s.Events) != 1 || !s.Closed {
		t.Errorf("stub = %+v", s)
	}

	s.Err = errors.New("down")
	if err := s.Publish(t.Context(), &RunCompletedEvent{}); err == nil {
		t.Error("expected configured error")
	}
}
