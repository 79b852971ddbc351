// Package pty owns one program running on a pseudo-terminal.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRows is used when a start request carries no size.
	DefaultRows = 24

	// DefaultCols is used when a start request carries no size.
	DefaultCols = 80

	// DefaultTerminateGrace is how long Terminate waits after SIGINT before killing.
	DefaultTerminateGrace = 3 * time.Second
)

// ErrClosed is returned by Write and Resize once the program has exited or
// the handle was terminated.
var ErrClosed = errors.New("pty is closed")

// SpawnError is returned by Start when the program cannot be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("spawn: %v", e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the program to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment for the process.
	// If nil, the current process environment is used.
	Env []string

	// Dir is the working directory for the process.
	Dir string

	// Rows and Cols are the initial window size.
	Rows uint16
	Cols uint16
}

// Process is a running program attached to the master side of a pty.
// Read returns io.EOF once the program has exited and its output is drained.
type Process struct {
	cmd *exec.Cmd
	tty *os.File
	pid int

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool

	exited   chan struct{}
	exitCode int
	waitErr  error

	termOnce sync.Once
	termErr  error
}

// PID returns the process ID of the running program.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the program exits and returns its exit code.
// A program killed by a signal reports -1.
func (p *Process) Wait() (int, error) {
	<-p.exited
	return p.exitCode, p.waitErr
}

// Write writes data to the program's input. Concurrent writes never
// interleave within a single call.
func (p *Process) Write(data []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.isClosed() {
		return 0, ErrClosed
	}
	n, err := p.tty.Write(data)
	if err != nil {
		if p.isClosed() || isClosedErr(err) {
			return n, ErrClosed
		}
		return n, fmt.Errorf("failed to write to PTY: %w", err)
	}
	return n, nil
}

// Resize changes the PTY window size.
func (p *Process) Resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return fmt.Errorf("invalid window size %dx%d", rows, cols)
	}
	if p.isClosed() {
		return ErrClosed
	}
	if err := setSize(p.tty, rows, cols); err != nil {
		if p.isClosed() || isClosedErr(err) {
			return ErrClosed
		}
		return fmt.Errorf("failed to resize PTY: %w", err)
	}
	return nil
}

// Terminate stops the program and releases the pty. It interrupts the
// program's process group, kills it after grace, waits for it to be reaped
// and closes the master. It is idempotent; concurrent callers all wait for
// the first call to finish.
func (p *Process) Terminate(grace time.Duration) error {
	p.termOnce.Do(func() {
		p.termErr = p.terminate(grace)
	})
	return p.termErr
}

func (p *Process) terminate(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultTerminateGrace
	}

	select {
	case <-p.exited:
	default:
		p.signalGroup(sigInterrupt)
		timer := time.NewTimer(grace)
		select {
		case <-p.exited:
			timer.Stop()
		case <-timer.C:
			p.signalGroup(sigKill)
			<-p.exited
		}
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if err := p.tty.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close PTY: %w", err)
	}
	return nil
}

// reap waits for the program and records its exit status.
func (p *Process) reap() {
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
		} else {
			p.exitCode = -1
			p.waitErr = err
		}
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	close(p.exited)
}

func (p *Process) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || isEIO(err)
}

// withTerm makes sure the program sees a usable TERM.
func withTerm(env []string) []string {
	if env == nil {
		env = os.Environ()
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}
