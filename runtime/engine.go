package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// EngineConfig configures an engine subprocess whose stdout is the frame stream.
type EngineConfig struct {
	// Command is the engine argv; Command[0] is resolved via PATH.
	Command []string
	// Env holds extra KEY=VALUE entries layered over the inherited environment.
	Env []string
	// Dir is the working directory (default: current).
	Dir string
}

// EngineResult represents the result of the engine process.
type EngineResult struct {
	// ExitCode is the process exit code, -1 if killed by a signal.
	ExitCode int
	// StderrBytes is the captured stderr output.
	StderrBytes []byte
}

// Engine is a running engine process, or any source that behaves like one.
type Engine interface {
	Start(ctx context.Context) error
	Stdout() io.Reader
	Wait() (*EngineResult, error)
	Kill() error
}

// EngineFactory creates an Engine. Used for test injection.
type EngineFactory func(config *EngineConfig, runID string) Engine

// EngineProcess manages the engine subprocess lifecycle.
type EngineProcess struct {
	config *EngineConfig
	runID  string
	cmd    *exec.Cmd
	stdout io.ReadCloser

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer
	stderrWG  sync.WaitGroup
}

// NewEngineProcess creates a new engine process manager.
func NewEngineProcess(config *EngineConfig, runID string) Engine {
	return &EngineProcess{config: config, runID: runID}
}

// Start starts the engine process. MSGFMT_RUN_ID is set in its environment.
func (p *EngineProcess) Start(ctx context.Context) error {
	if len(p.config.Command) == 0 {
		return errors.New("engine command is empty")
	}

	p.cmd = exec.CommandContext(ctx, p.config.Command[0], p.config.Command[1:]...)
	p.cmd.Dir = p.config.Dir

	env := append(os.Environ(), p.config.Env...)
	env = append(env, "MSGFMT_RUN_ID="+p.runID)
	p.cmd.Env = deduplicateEnv(env)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Drain stderr concurrently so a chatty engine cannot block on a full pipe.
	p.stderrWG.Add(1)
	go func() {
		defer p.stderrWG.Done()
		data, _ := io.ReadAll(stderr)
		p.stderrMu.Lock()
		p.stderrBuf.Write(data)
		p.stderrMu.Unlock()
	}()

	return nil
}

// Stdout returns the stdout reader carrying the frame stream.
func (p *EngineProcess) Stdout() io.Reader {
	return p.stdout
}

// Wait waits for the engine to exit and returns the result.
// Must be called after the frame stream has been fully read.
func (p *EngineProcess) Wait() (*EngineResult, error) {
	if p.cmd == nil {
		return nil, errors.New("engine not started")
	}

	p.stderrWG.Wait()
	err := p.cmd.Wait()

	p.stderrMu.Lock()
	result := &EngineResult{StderrBytes: bytes.Clone(p.stderrBuf.Bytes())}
	p.stderrMu.Unlock()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("engine wait failed: %w", err)
		}
		result.ExitCode = -1
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			result.ExitCode = status.ExitStatus()
		}
	}
	return result, nil
}

// Kill terminates the engine process.
func (p *EngineProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
