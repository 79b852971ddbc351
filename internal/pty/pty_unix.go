//go:build !windows

package pty

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	sigInterrupt = unix.SIGINT
	sigKill      = unix.SIGKILL
)

// Start launches the program on a new pty. The child becomes the leader of a
// new session with the pty as its controlling terminal.
func Start(opts StartOptions) (*Process, error) {
	name := strings.TrimSpace(strings.Join(append([]string{opts.Command}, opts.Args...), " "))
	if opts.Command == "" {
		return nil, &SpawnError{Err: errors.New("empty command")}
	}

	rows, cols := opts.Rows, opts.Cols
	if rows == 0 {
		rows = DefaultRows
	}
	if cols == 0 {
		cols = DefaultCols
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = withTerm(opts.Env)
	cmd.Dir = opts.Dir

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, &SpawnError{Command: name, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		tty:    tty,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	go p.reap()

	return p, nil
}

// Read reads program output. The pty master reports EIO once the slave side
// is gone; that and a closed file are both reported as io.EOF.
func (p *Process) Read(b []byte) (int, error) {
	n, err := p.tty.Read(b)
	if err != nil && (isClosedErr(err) || errors.Is(err, io.EOF)) {
		return n, io.EOF
	}
	return n, err
}

func setSize(f *os.File, rows, cols uint16) error {
	return pty.Setsize(f, &pty.Winsize{Rows: rows, Cols: cols})
}

// signalGroup signals the program's whole process group so that children
// spawned by a shell are interrupted too.
func (p *Process) signalGroup(sig syscall.Signal) {
	if err := unix.Kill(-p.pid, sig); err != nil {
		_ = p.cmd.Process.Signal(sig)
	}
}

func isEIO(err error) bool {
	return errors.Is(err, unix.EIO)
}
