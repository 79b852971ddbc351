package session

import (
	"io"
	"time"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/pty"
)

// Process is the running program owned by the hub. *pty.Process implements it.
type Process interface {
	io.Reader
	Write(p []byte) (int, error)
	Resize(rows, cols uint16) error
	Wait() (int, error)
	Terminate(grace time.Duration) error
	PID() int
}

// Spawner starts a new program instance with the given window size.
type Spawner func(rows, cols uint16) (Process, error)

// PTYSpawner returns a Spawner that runs command on a real pty.
func PTYSpawner(command []string, env []string, dir string) (Spawner, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, model.ErrCommandRequired
	}
	return func(rows, cols uint16) (Process, error) {
		p, err := pty.Start(pty.StartOptions{
			Command: command[0],
			Args:    command[1:],
			Env:     env,
			Dir:     dir,
			Rows:    rows,
			Cols:    cols,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}, nil
}
