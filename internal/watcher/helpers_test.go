package watcher_test

import (
	"context"
	"sync"
	"time"

	"github.com/autosync-project/autosync/internal/engine"
	"github.com/autosync-project/autosync/internal/watcher"
	"github.com/autosync-project/autosync/pkg/config"
)

type syncCall struct {
	src, dst string
	exclude  []string
}

// countingEngine records every Sync call and returns a fixed result.
type countingEngine struct {
	mu      sync.Mutex
	calls   []syncCall
	fail    bool
	block   chan struct{} // when non-nil, Sync waits for it to close
	started chan struct{} // when non-nil, receives once per Sync call
}

func (e *countingEngine) Name() string { return "counting" }

func (e *countingEngine) Sync(_ context.Context, src, dst string, exclude []string) engine.Result {
	e.mu.Lock()
	e.calls = append(e.calls, syncCall{src: src, dst: dst, exclude: exclude})
	block, started := e.block, e.started
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if e.fail {
		code := 1
		return engine.Result{ExitCode: &code, Stderr: "failed"}
	}
	code := 0
	return engine.Result{Success: true, ExitCode: &code}
}

func (e *countingEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *countingEngine) srcs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.src
	}
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHandle records Stop/Wait ordering.
type fakeHandle struct {
	name    string
	log     *eventLog
	stopped chan struct{}
	once    sync.Once
	release chan struct{} // when non-nil, Wait blocks until closed
}

func (h *fakeHandle) Stop() {
	h.once.Do(func() { close(h.stopped) })
	h.log.add("stop:" + h.name)
}

func (h *fakeHandle) Wait() {
	<-h.stopped
	if h.release != nil {
		<-h.release
	}
	h.log.add("wait:" + h.name)
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// fakeNotifier hands out fakeHandles and keeps the registered handlers.
type fakeNotifier struct {
	mu       sync.Mutex
	log      eventLog
	handles  []*fakeHandle
	handlers map[string]watcher.Handler
	failFor  map[string]error
	panicFor map[string]bool
	release  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		handlers: make(map[string]watcher.Handler),
		failFor:  make(map[string]error),
		panicFor: make(map[string]bool),
	}
}

func (n *fakeNotifier) Watch(root string, h watcher.Handler) (watcher.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panicFor[root] {
		panic("notifier exploded")
	}
	if err := n.failFor[root]; err != nil {
		return nil, err
	}
	handle := &fakeHandle{name: root, log: &n.log, stopped: make(chan struct{}), release: n.release}
	n.handles = append(n.handles, handle)
	n.handlers[root] = h
	return handle, nil
}

func (n *fakeNotifier) registrations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handles)
}

func (n *fakeNotifier) handler(root string) watcher.Handler {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handlers[root]
}

func watcherProject(src string) config.Project {
	return config.Project{Name: "e2e", Src: src, Dst: "/dst", Watch: true}
}
