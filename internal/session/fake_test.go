package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/pty"
)

// fakeProcess is an in-memory program. Tests push output with emit and end
// it with exit.
type fakeProcess struct {
	pid int
	out chan []byte

	mu         sync.Mutex
	written    bytes.Buffer
	rows, cols uint16
	terminated bool

	exitOnce sync.Once
	exited   chan struct{}
	code     int
}

func newFakeProcess(pid int, rows, cols uint16) *fakeProcess {
	return &fakeProcess{
		pid:    pid,
		out:    make(chan []byte, 4096),
		rows:   rows,
		cols:   cols,
		exited: make(chan struct{}),
	}
}

func (f *fakeProcess) emit(s string) {
	f.out <- []byte(s)
}

func (f *fakeProcess) exit(code int) {
	f.exitOnce.Do(func() {
		f.code = code
		close(f.exited)
	})
}

func (f *fakeProcess) Read(b []byte) (int, error) {
	select {
	case chunk := <-f.out:
		return copy(b, chunk), nil
	case <-f.exited:
		select {
		case chunk := <-f.out:
			return copy(b, chunk), nil
		default:
			return 0, io.EOF
		}
	}
}

func (f *fakeProcess) Write(p []byte) (int, error) {
	select {
	case <-f.exited:
		return 0, pty.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakeProcess) Resize(rows, cols uint16) error {
	select {
	case <-f.exited:
		return pty.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakeProcess) size() (uint16, uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.cols
}

func (f *fakeProcess) input() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func (f *fakeProcess) Wait() (int, error) {
	<-f.exited
	return f.code, nil
}

func (f *fakeProcess) Terminate(time.Duration) error {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
	f.exit(-1)
	return nil
}

func (f *fakeProcess) isTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

func (f *fakeProcess) isExited() bool {
	select {
	case <-f.exited:
		return true
	default:
		return false
	}
}

func (f *fakeProcess) PID() int {
	return f.pid
}

// fakeSpawner hands out fakeProcesses and checks that no two are ever live
// at the same time.
type fakeSpawner struct {
	mu        sync.Mutex
	procs     []*fakeProcess
	fail      error
	delay     time.Duration
	overlaps  int
	spawnedCh chan *fakeProcess
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{spawnedCh: make(chan *fakeProcess, 64)}
}

func (s *fakeSpawner) spawn(rows, cols uint16) (Process, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, &pty.SpawnError{Command: "fake", Err: s.fail}
	}
	for _, p := range s.procs {
		if !p.isExited() {
			s.overlaps++
		}
	}
	p := newFakeProcess(1000+len(s.procs), rows, cols)
	s.procs = append(s.procs, p)
	s.spawnedCh <- p
	return p, nil
}

func (s *fakeSpawner) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) overlapCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

// next waits for the next spawned process.
func (s *fakeSpawner) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-s.spawnedCh:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for spawn")
		return nil
	}
}

// fakeSubscriber records every event. A positive limit makes it overflow
// once that many events are queued.
type fakeSubscriber struct {
	id    string
	limit int

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (c *fakeSubscriber) ID() string { return c.id }

func (c *fakeSubscriber) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.limit > 0 && len(c.events) >= c.limit {
		c.closed = true
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeSubscriber) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeSubscriber) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b bytes.Buffer
	for _, ev := range c.events {
		if ev.Type == EventOutput {
			b.Write(ev.Data)
		}
	}
	return b.String()
}

func (c *fakeSubscriber) eventsOf(typ EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeSubscriber) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

// fakeRuns records run history calls.
type fakeRuns struct {
	mu      sync.Mutex
	started []string
	ended   map[string]model.EndReason
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{ended: make(map[string]model.EndReason)}
}

func (r *fakeRuns) RunStarted(ctx context.Context, run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, run.ID)
	return nil
}

func (r *fakeRuns) RunEnded(ctx context.Context, id string, endedAt time.Time, exitCode int, reason model.EndReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ended[id]; ok {
		return errors.New("run ended twice")
	}
	r.ended[id] = reason
	return nil
}

func (r *fakeRuns) reasons() []model.EndReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EndReason, 0, len(r.started))
	for _, id := range r.started {
		if reason, ok := r.ended[id]; ok {
			out = append(out, reason)
		}
	}
	return out
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", fmt.Sprintf(format, args...))
}

func newTestHub(t *testing.T, spawner *fakeSpawner, mutate func(*Config)) *Hub {
	t.Helper()
	cfg := Config{
		Spawner: spawner.spawn,
		Command: "fake",
		Policy: Policy{
			EagerStart:     true,
			AllowRestart:   true,
			ClearOnRestart: true,
			RestartDelay:   10 * time.Millisecond,
			StartTimeout:   2 * time.Second,
			TerminateGrace: 100 * time.Millisecond,
		},
		ScrollbackBytes: 1024,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Close(ctx)
	})
	return h
}
