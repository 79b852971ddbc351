//go:build !windows

package pty

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "bash", []string{"bash"}},
		{"args", "python3 -m http.server 8000", []string{"python3", "-m", "http.server", "8000"}},
		{"double quotes", `sh -c "echo hello world"`, []string{"sh", "-c", "echo hello world"}},
		{"single quotes", `sh -c 'echo "hi"'`, []string{"sh", "-c", `echo "hi"`}},
		{"extra spaces", "  top   -d 1 ", []string{"top", "-d", "1"}},
		{"empty quoted arg", `printf ''`, []string{"printf", ""}},
		{"escaped space", `echo hello\ world`, []string{"echo", "hello world"}},
		{"escaped quote in double quotes", `printf "a\"b"`, []string{"printf", `a"b`}},
		{"backslash kept in single quotes", `echo 'a\b'`, []string{"echo", `a\b`}},
		{"adjacent quoted parts", `echo "a"'b'c`, []string{"echo", "abc"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitCommand(tt.in)
			if err != nil {
				t.Fatalf("SplitCommand(%q) failed: %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCommand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unterminated quote", func(t *testing.T) {
		if _, err := SplitCommand(`sh -c "echo`); err == nil {
			t.Error("expected error for an unterminated quote")
		}
	})
}

func TestStartSpawnError(t *testing.T) {
	_, err := Start(StartOptions{Command: "/nonexistent/definitely-not-a-program"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}

	_, err = Start(StartOptions{})
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError for empty command, got %v", err)
	}
}

// readUntil reads from p until want appears or the deadline passes.
func readUntil(t *testing.T, p *Process, want string, timeout time.Duration) string {
	t.Helper()

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1024)
		for {
			n, err := p.Read(buf)
			out.Write(buf[:n])
			if strings.Contains(out.String(), want) || err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for %q, got %q", want, out.String())
	}
	return out.String()
}

func TestProcessOutputAndExit(t *testing.T) {
	p, err := Start(StartOptions{Command: "/bin/sh", Args: []string{"-c", "echo ready; exit 3"}})
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer p.Terminate(time.Second)

	out := readUntil(t, p, "ready", 5*time.Second)
	if !strings.Contains(out, "ready") {
		t.Fatalf("expected output to contain ready, got %q", out)
	}

	// Drain to EOF
	buf := make([]byte, 1024)
	for {
		if _, err := p.Read(buf); err != nil {
			if err != io.EOF {
				t.Fatalf("expected io.EOF, got %v", err)
			}
			break
		}
	}

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}

	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed writing after exit, got %v", err)
	}
	if err := p.Resize(30, 100); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed resizing after exit, got %v", err)
	}
}

func TestProcessEchoAndResize(t *testing.T) {
	p, err := Start(StartOptions{Command: "/bin/sh", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer p.Terminate(time.Second)

	if err := p.Resize(40, 120); err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if err := p.Resize(0, 120); err == nil {
		t.Error("expected error for zero rows")
	}

	if _, err := p.Write([]byte("stty size\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readUntil(t, p, "40 120", 5*time.Second)
}

func TestTerminateIsIdempotent(t *testing.T) {
	p, err := Start(StartOptions{Command: "/bin/sh", Args: []string{"-c", "trap '' INT; sleep 30"}})
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	start := time.Now()
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- p.Terminate(200 * time.Millisecond) }()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("terminate returned error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("terminate took too long: %v", elapsed)
	}

	select {
	case <-p.exited:
	default:
		t.Fatal("process should be reaped after Terminate")
	}

	// Calling again after completion is a no-op
	if err := p.Terminate(time.Second); err != nil {
		t.Errorf("second terminate returned error: %v", err)
	}
	if code, _ := p.Wait(); code != -1 {
		t.Errorf("expected -1 for killed process, got %d", code)
	}
}

func TestTerminateAfterNaturalExit(t *testing.T) {
	p, err := Start(StartOptions{Command: "/bin/sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	<-p.exited

	if err := p.Terminate(time.Second); err != nil {
		t.Errorf("terminate after exit returned error: %v", err)
	}
	if code, _ := p.Wait(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}
