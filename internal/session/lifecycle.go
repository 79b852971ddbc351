package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/pty"
)

// Policy decides when the program is started and restarted.
type Policy struct {
	// EagerStart starts the program when the hub starts instead of on first demand.
	EagerStart bool

	// AutoRestart respawns the program RestartDelay after it exits.
	AutoRestart bool

	// AllowRestart permits client restart requests.
	AllowRestart bool

	// ClearOnRestart drops the scrollback when a new instance replaces the old one.
	ClearOnRestart bool

	RestartDelay   time.Duration
	StartTimeout   time.Duration
	TerminateGrace time.Duration
}

// DefaultPolicy mirrors the defaults of the command-line tool.
func DefaultPolicy() Policy {
	return Policy{
		EagerStart:     true,
		AllowRestart:   true,
		ClearOnRestart: true,
		RestartDelay:   time.Second,
		StartTimeout:   10 * time.Second,
		TerminateGrace: pty.DefaultTerminateGrace,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.RestartDelay <= 0 {
		p.RestartDelay = d.RestartDelay
	}
	if p.StartTimeout <= 0 {
		p.StartTimeout = d.StartTimeout
	}
	if p.TerminateGrace <= 0 {
		p.TerminateGrace = d.TerminateGrace
	}
	return p
}

// startCall is a start or restart in flight. Everyone who needs the program
// running waits on the same call.
type startCall struct {
	done    chan struct{}
	err     error
	restart bool
}

func (c *startCall) finish(err error) {
	c.err = err
	close(c.done)
}

// startLocked joins the start in flight or begins a new one.
// h.mu must be held.
func (h *Hub) startLocked() *startCall {
	if h.pending != nil {
		return h.pending
	}
	call := &startCall{done: make(chan struct{})}
	h.pending = call
	h.gen++
	go h.runStart(call, h.gen, nil)
	return call
}

// restartLocked moves the session to restarting and replaces the current
// instance in the background. h.mu must be held and no start may be pending.
func (h *Hub) restartLocked() *startCall {
	if h.restartTimer != nil {
		h.restartTimer.Stop()
		h.restartTimer = nil
	}

	old := h.proc
	h.proc = nil
	h.state = model.SessionStateRestarting
	h.gen++
	if h.policy.ClearOnRestart {
		h.scrollback.Clear()
	}
	h.metrics.SetState(string(h.state))

	call := &startCall{done: make(chan struct{}), restart: true}
	h.pending = call
	go h.runStart(call, h.gen, old)
	return call
}

// runStart tears down old (if any), spawns a new instance and installs it.
// Spawning and termination happen without h.mu so output delivery to clients
// is never stalled by process management.
func (h *Hub) runStart(call *startCall, gen uint64, old Process) {
	oldCode := -1
	if old != nil {
		if err := old.Terminate(h.policy.TerminateGrace); err != nil {
			h.log.Warn().Err(err).Int("pid", old.PID()).Msg("failed to terminate program")
		}
		oldCode, _ = old.Wait()
		h.log.Info().Int("pid", old.PID()).Int("code", oldCode).Msg("program terminated for restart")
	}

	h.mu.Lock()
	rows, cols := h.rows, h.cols
	h.mu.Unlock()

	proc, err := h.spawn(rows, cols)

	h.mu.Lock()
	if h.state == model.SessionStateClosed || h.gen != gen {
		h.mu.Unlock()
		if err == nil {
			_ = proc.Terminate(h.policy.TerminateGrace)
		}
		call.finish(model.ErrHubClosed)
		return
	}
	h.pending = nil

	if err != nil {
		if h.startedAt.IsZero() {
			h.state = model.SessionStateNotStarted
		} else {
			h.state = model.SessionStateExited
			if old != nil {
				h.exitCode = oldCode
			}
		}
		h.metrics.SpawnFailed()
		h.metrics.SetState(string(h.state))
		h.broadcastLocked(Event{Type: EventError, Error: err.Error()})
		h.mu.Unlock()

		h.log.Error().Err(err).Msg("failed to start program")
		call.finish(err)
		return
	}

	h.proc = proc
	h.state = model.SessionStateRunning
	h.startedAt = time.Now()
	h.exitCode = 0
	if call.restart {
		h.restarts++
		h.metrics.Restarted()
		h.broadcastLocked(Event{Type: EventRestarted})
	}
	h.metrics.SetState(string(h.state))

	// A resize may have arrived while the program was being spawned.
	if h.rows != rows || h.cols != cols {
		if err := proc.Resize(h.rows, h.cols); err != nil {
			h.log.Debug().Err(err).Msg("failed to apply pending resize")
		}
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		PID:       proc.PID(),
		Command:   h.command,
		StartedAt: h.startedAt,
	}
	h.wg.Add(1)
	go h.forward(gen, proc, run)
	h.mu.Unlock()

	h.log.Info().Int("pid", run.PID).Bool("restart", call.restart).Msg("program started")
	call.finish(nil)
}

// waitStart blocks until call finishes, ctx is done or the start timeout passes.
func (h *Hub) waitStart(ctx context.Context, call *startCall) error {
	timer := time.NewTimer(h.policy.StartTimeout)
	defer timer.Stop()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return model.ErrStartTimeout
	}
}

// scheduleRestartLocked arms the auto-restart timer after an exit.
// h.mu must be held.
func (h *Hub) scheduleRestartLocked(gen uint64) {
	if !h.policy.AutoRestart {
		return
	}
	h.restartTimer = time.AfterFunc(h.policy.RestartDelay, func() {
		h.mu.Lock()
		if h.state != model.SessionStateExited || h.gen != gen || h.pending != nil {
			h.mu.Unlock()
			return
		}
		h.log.Info().Msg("restarting program after exit")
		h.restartLocked()
		h.mu.Unlock()
	})
}
