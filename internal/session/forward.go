package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/zetxtech/websole/internal/model"
)

// readBufferSize is the largest chunk forwarded as one output event.
const readBufferSize = 20 * 1024

// recordTimeout bounds run history writes so a slow database never holds up
// the output path for long.
const recordTimeout = 5 * time.Second

// exitDrainTimeout bounds how long the exit is held back for output still
// buffered in the pty. A background child that inherited the terminal can
// keep it open long after the program itself is gone.
const exitDrainTimeout = 500 * time.Millisecond

// forward drains one program instance. It is the only reader of proc and
// the only source of the exit signal for its generation. The exit is taken
// from Wait, not from the end of the output stream.
func (h *Hub) forward(gen uint64, proc Process, run *model.Run) {
	defer h.wg.Done()

	h.recordStart(run)

	drained := make(chan struct{})
	h.wg.Add(1)
	go h.pump(gen, proc, run, drained)

	code, err := proc.Wait()
	if err != nil {
		h.log.Warn().Err(err).Int("pid", run.PID).Msg("failed to wait for program")
	}

	timer := time.NewTimer(exitDrainTimeout)
	select {
	case <-drained:
		timer.Stop()
	case <-timer.C:
		h.log.Debug().Int("pid", run.PID).Msg("pty still open after exit, closing it")
	}
	h.handleExit(gen, proc, run, code)
}

// pump copies output from proc until the pty reports end of stream, which
// happens at the latest when handleExit releases it.
func (h *Hub) pump(gen uint64, proc Process, run *model.Run, drained chan<- struct{}) {
	defer h.wg.Done()
	defer close(drained)

	buf := make([]byte, readBufferSize)
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			h.deliver(gen, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Warn().Err(err).Int("pid", run.PID).Msg("pty read failed")
			}
			return
		}
	}
}

// deliver appends chunk to the scrollback and fans it out. Output from a
// generation that is no longer current is dropped.
func (h *Hub) deliver(gen uint64, chunk []byte) {
	data := make([]byte, len(chunk))
	copy(data, chunk)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gen != gen || h.state != model.SessionStateRunning {
		return
	}
	h.scrollback.Append(data)
	h.broadcastLocked(Event{Type: EventOutput, Data: data})
	h.metrics.Output(len(data))
}

// broadcastLocked sends ev to every client without blocking. Clients that
// cannot take it are closed and dropped. h.mu must be held.
func (h *Hub) broadcastLocked(ev Event) {
	for id, c := range h.clients {
		if c.Send(ev) {
			continue
		}
		delete(h.clients, id)
		c.Close()
		h.metrics.ClientDropped()
		h.log.Warn().Str("client", id).Msg("client could not keep up, disconnected")
	}
	h.metrics.SetClients(len(h.clients))
}

// handleExit moves the session to exited if gen is still current, then
// releases the pty and closes the run record.
func (h *Hub) handleExit(gen uint64, proc Process, run *model.Run, code int) {
	reason := model.EndReasonExit

	h.mu.Lock()
	if h.gen == gen && h.proc == proc {
		h.state = model.SessionStateExited
		h.exitCode = code
		h.proc = nil
		h.broadcastLocked(Event{Type: EventExited, Code: code})
		h.metrics.SetState(string(h.state))
		h.scheduleRestartLocked(gen)
	} else if h.state == model.SessionStateClosed {
		reason = model.EndReasonShutdown
	} else {
		reason = model.EndReasonRestart
	}
	h.mu.Unlock()

	if err := proc.Terminate(h.policy.TerminateGrace); err != nil {
		h.log.Debug().Err(err).Msg("failed to release pty")
	}

	if reason == model.EndReasonExit {
		h.log.Info().Int("pid", run.PID).Int("code", code).Msg("program exited")
	}
	h.recordEnd(run, code, reason)
}

func (h *Hub) recordStart(run *model.Run) {
	if h.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := h.runs.RunStarted(ctx, run); err != nil {
		h.log.Warn().Err(err).Str("run", run.ID).Msg("failed to record run start")
	}
}

func (h *Hub) recordEnd(run *model.Run, code int, reason model.EndReason) {
	if h.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := h.runs.RunEnded(ctx, run.ID, time.Now(), code, reason); err != nil {
		h.log.Warn().Err(err).Str("run", run.ID).Msg("failed to record run end")
	}
}
