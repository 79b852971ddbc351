//go:build windows

package pty

import (
	"errors"
	"io"
	"os"
	"syscall"
)

const (
	sigInterrupt = syscall.SIGINT
	sigKill      = syscall.SIGKILL
)

// Start is not supported on Windows.
func Start(opts StartOptions) (*Process, error) {
	return nil, &SpawnError{Command: opts.Command, Err: errors.ErrUnsupported}
}

func (p *Process) Read(b []byte) (int, error) {
	return 0, io.EOF
}

func setSize(f *os.File, rows, cols uint16) error {
	return errors.ErrUnsupported
}

func (p *Process) signalGroup(sig syscall.Signal) {
	_ = p.cmd.Process.Kill()
}

func isEIO(err error) bool {
	return false
}
