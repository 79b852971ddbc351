package pty

import (
	"fmt"

	"github.com/google/shlex"
)

// SplitCommand splits a command string into program and arguments using
// POSIX shell rules: quotes group words and backslashes escape.
func SplitCommand(cmd string) ([]string, error) {
	args, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", cmd, err)
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}
