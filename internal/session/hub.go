// Package session implements the bridge between one program running on a pty
// and the clients attached to it.
//
// The Hub owns the program, its scrollback and the registry of attached
// clients. A single mutex guards every state transition; output is appended
// to the scrollback and fanned out under that mutex so each client sees every
// byte produced after it attached exactly once and in order. Spawning,
// terminating and writing to the program happen outside the mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zetxtech/websole/internal/buffer"
	"github.com/zetxtech/websole/internal/metrics"
	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/pty"
)

// RunRecorder persists the history of program runs.
type RunRecorder interface {
	RunStarted(ctx context.Context, run *model.Run) error
	RunEnded(ctx context.Context, id string, endedAt time.Time, exitCode int, reason model.EndReason) error
}

// Config holds everything needed to build a Hub.
type Config struct {
	// Spawner starts the program. Required.
	Spawner Spawner

	// Command is the command line recorded in run history.
	Command string

	Policy Policy

	// ScrollbackBytes is the replay budget; defaults to buffer.DefaultCapacity.
	ScrollbackBytes int

	// Rows and Cols are the size used until a client resizes.
	Rows uint16
	Cols uint16

	// Runs is optional.
	Runs RunRecorder

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Hub is the single shared terminal session.
type Hub struct {
	spawn   Spawner
	command string
	policy  Policy
	runs    RunRecorder
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu           sync.Mutex
	state        model.SessionState
	exitCode     int
	proc         Process
	gen          uint64
	pending      *startCall
	restartTimer *time.Timer
	startedAt    time.Time
	restarts     int
	rows, cols   uint16
	clients      map[string]Subscriber
	scrollback   *buffer.RingBuffer

	wg sync.WaitGroup
}

// New creates a hub in the not-started state. Call Start to apply the
// eager-start policy.
func New(cfg Config) (*Hub, error) {
	if cfg.Spawner == nil {
		return nil, model.ErrCommandRequired
	}
	if cfg.ScrollbackBytes <= 0 {
		cfg.ScrollbackBytes = buffer.DefaultCapacity
	}
	if cfg.Rows == 0 {
		cfg.Rows = pty.DefaultRows
	}
	if cfg.Cols == 0 {
		cfg.Cols = pty.DefaultCols
	}

	h := &Hub{
		spawn:      cfg.Spawner,
		command:    cfg.Command,
		policy:     cfg.Policy.withDefaults(),
		runs:       cfg.Runs,
		metrics:    cfg.Metrics,
		log:        log.With().Str("module", "hub").Logger(),
		state:      model.SessionStateNotStarted,
		rows:       cfg.Rows,
		cols:       cfg.Cols,
		clients:    make(map[string]Subscriber),
		scrollback: buffer.NewRingBuffer(cfg.ScrollbackBytes),
	}
	h.metrics.SetState(string(h.state))
	return h, nil
}

// Policy returns the lifecycle policy in effect.
func (h *Hub) Policy() Policy {
	return h.policy
}

// Start starts the program right away when the policy asks for eager start.
// A spawn failure is logged and reported to clients; the session stays
// not started and the next attach or input retries.
func (h *Hub) Start(ctx context.Context) error {
	if !h.policy.EagerStart {
		return nil
	}
	return h.EnsureStarted(ctx)
}

// EnsureStarted starts the program if it was never started and waits for it.
// An exited program is only brought back by a restart.
func (h *Hub) EnsureStarted(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case model.SessionStateClosed:
		h.mu.Unlock()
		return model.ErrHubClosed
	case model.SessionStateRunning:
		h.mu.Unlock()
		return nil
	case model.SessionStateExited:
		h.mu.Unlock()
		return model.ErrNotRunning
	}
	call := h.startLocked()
	h.mu.Unlock()

	return h.waitStart(ctx, call)
}

// Attach replays the scrollback to sub and registers it for live output.
// The snapshot and the registration happen in one critical section, so no
// output is lost or duplicated at the boundary. The replay itself is only
// queued here; the client's writer sends it outside the hub lock.
//
// Attaching to a session that was never started starts it and waits for the
// start. A spawn failure is delivered to sub as an error event rather than
// returned. If ctx ends first, sub is detached again.
func (h *Hub) Attach(ctx context.Context, sub Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	if h.state == model.SessionStateClosed {
		h.mu.Unlock()
		return model.ErrHubClosed
	}
	if sub.Closed() {
		h.mu.Unlock()
		return model.ErrClientClosed
	}

	if snap := h.scrollback.Snapshot(); len(snap) > 0 {
		if !sub.Send(Event{Type: EventOutput, Data: snap}) {
			h.mu.Unlock()
			return model.ErrClientClosed
		}
	}
	if h.state == model.SessionStateExited {
		sub.Send(Event{Type: EventExited, Code: h.exitCode})
	}
	h.clients[sub.ID()] = sub
	count := len(h.clients)

	var call *startCall
	if h.state == model.SessionStateNotStarted {
		call = h.startLocked()
	}
	h.mu.Unlock()

	h.metrics.SetClients(count)
	h.log.Debug().Str("client", sub.ID()).Int("clients", count).Msg("client attached")

	if call == nil {
		return nil
	}

	err := h.waitStart(ctx, call)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		h.Detach(sub)
		return ctx.Err()
	case errors.Is(err, model.ErrHubClosed):
		return err
	default:
		// Spawn failures were broadcast as error events; a slow start
		// will still reach the client once it completes.
		h.log.Warn().Err(err).Str("client", sub.ID()).Msg("program not started on attach")
		return nil
	}
}

// Detach removes sub and stops delivery to it. It is safe to call at any
// time and more than once.
func (h *Hub) Detach(sub Subscriber) {
	h.mu.Lock()
	if cur, ok := h.clients[sub.ID()]; ok && cur == sub {
		delete(h.clients, sub.ID())
	}
	count := len(h.clients)
	h.mu.Unlock()

	sub.Close()
	h.metrics.SetClients(count)
	h.log.Debug().Str("client", sub.ID()).Int("clients", count).Msg("client detached")
}

// SubmitInput writes p to the program. When the program was never started
// it is started first; when a start or restart is in flight the call waits
// for it, bounded by the start timeout and ctx. Input for an exited program
// is dropped with ErrNotRunning. Input racing with the program's exit is
// dropped silently.
func (h *Hub) SubmitInput(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		h.mu.Lock()
		switch h.state {
		case model.SessionStateClosed:
			h.mu.Unlock()
			return model.ErrHubClosed

		case model.SessionStateExited:
			h.mu.Unlock()
			return model.ErrNotRunning

		case model.SessionStateRunning:
			proc := h.proc
			h.mu.Unlock()

			if _, err := proc.Write(p); err != nil {
				if errors.Is(err, pty.ErrClosed) {
					h.log.Debug().Int("bytes", len(p)).Msg("dropped input for exited program")
					return nil
				}
				return err
			}
			h.metrics.Input(len(p))
			return nil

		default:
			// Not started yet, or a start or restart is in flight.
			call := h.pending
			if call == nil {
				call = h.startLocked()
			}
			h.mu.Unlock()

			if err := h.waitStart(ctx, call); err != nil {
				return err
			}
		}
	}
	return model.ErrNotRunning
}

// RequestResize applies a new window size. The last call wins; the size is
// remembered and used for every later spawn.
func (h *Hub) RequestResize(rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return fmt.Errorf("invalid window size %dx%d", rows, cols)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == model.SessionStateClosed {
		return model.ErrHubClosed
	}
	h.rows, h.cols = rows, cols
	if h.state != model.SessionStateRunning || h.proc == nil {
		return nil
	}
	if err := h.proc.Resize(rows, cols); err != nil && !errors.Is(err, pty.ErrClosed) {
		return err
	}
	return nil
}

// RequestRestart replaces the program with a fresh instance and waits for
// it. The old instance is terminated and reaped before the new one is
// spawned. Concurrent requests share one restart.
func (h *Hub) RequestRestart(ctx context.Context) error {
	if !h.policy.AllowRestart {
		return model.ErrRestartNotAllowed
	}

	h.mu.Lock()
	if h.state == model.SessionStateClosed {
		h.mu.Unlock()
		return model.ErrHubClosed
	}
	call := h.pending
	if call == nil {
		call = h.restartLocked()
	}
	h.mu.Unlock()

	h.log.Info().Msg("restart requested")
	return h.waitStart(ctx, call)
}

// Revive makes sure the program is running, starting a never-started program
// and respawning an exited one regardless of AllowRestart. It reports whether
// it had to start anything.
func (h *Hub) Revive(ctx context.Context) (bool, error) {
	h.mu.Lock()
	var call *startCall
	switch {
	case h.state == model.SessionStateClosed:
		h.mu.Unlock()
		return false, model.ErrHubClosed
	case h.pending != nil:
		call = h.pending
	case h.state == model.SessionStateRunning:
		h.mu.Unlock()
		return false, nil
	case h.state == model.SessionStateExited:
		call = h.restartLocked()
	default:
		call = h.startLocked()
	}
	h.mu.Unlock()

	return true, h.waitStart(ctx, call)
}

// Status returns a snapshot of the session.
func (h *Hub) Status() model.SessionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := model.SessionStatus{
		State:    h.state,
		Rows:     h.rows,
		Cols:     h.cols,
		Clients:  len(h.clients),
		Restarts: h.restarts,
	}
	if h.state == model.SessionStateExited {
		code := h.exitCode
		st.ExitCode = &code
	}
	if h.proc != nil {
		pid := h.proc.PID()
		st.PID = &pid
	}
	if !h.startedAt.IsZero() {
		t := h.startedAt
		st.StartedAt = &t
	}
	return st
}

// Scrollback returns a copy of the retained output.
func (h *Hub) Scrollback() []byte {
	return h.scrollback.Snapshot()
}

// Close terminates the program, disconnects every client and waits for the
// background goroutines to finish.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.state == model.SessionStateClosed {
		h.mu.Unlock()
		return nil
	}
	h.state = model.SessionStateClosed
	h.gen++
	proc := h.proc
	h.proc = nil
	pending := h.pending
	h.pending = nil
	if h.restartTimer != nil {
		h.restartTimer.Stop()
		h.restartTimer = nil
	}
	clients := make([]Subscriber, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]Subscriber)
	h.metrics.SetState(string(h.state))
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.metrics.SetClients(0)

	if proc != nil {
		if err := proc.Terminate(h.policy.TerminateGrace); err != nil {
			h.log.Warn().Err(err).Msg("failed to terminate program")
		}
	}

	done := make(chan struct{})
	go func() {
		if pending != nil {
			<-pending.done
		}
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("session closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
