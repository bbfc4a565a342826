// Package watcher keeps project destinations in step with their sources. A
// Coordinator runs the initial sync of every project and registers a
// recursive watch for projects that ask for one; each watch feeds a Session,
// which debounces events and invokes the sync engine.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/autosync-project/autosync/internal/engine"
	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/errclass"
	"github.com/autosync-project/autosync/pkg/logging"
	"github.com/autosync-project/autosync/pkg/metrics"
)

// State is the coordinator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateWatching
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateWatching:
		return "watching"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type registration struct {
	project string
	handle  Handle
}

// Coordinator owns the sessions and watch registrations of all projects.
type Coordinator struct {
	projects    []config.Project
	engine      engine.Engine
	notifier    Notifier
	logger      *logging.Logger
	metrics     *metrics.Registry
	sessionOpts []SessionOption

	mu            sync.Mutex
	state         State
	sessions      []*Session
	registrations []registration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the base logger. The coordinator logs as "directory_watcher"
// and sessions as "watcher_<project>".
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics records outcomes in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Coordinator) { c.metrics = r }
}

// WithSessionOptions applies opts to every session the coordinator creates.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(c *Coordinator) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// NewCoordinator creates a coordinator for projects.
func NewCoordinator(projects []config.Project, eng engine.Engine, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		projects: projects,
		engine:   eng,
		notifier: notifier,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sessions returns the sessions created by Start or RunOnce, in project order.
func (c *Coordinator) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Watched returns the names of projects with an active registration, in
// registration order.
func (c *Coordinator) Watched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.registrations))
	for i, r := range c.registrations {
		names[i] = r.project
	}
	return names
}

func (c *Coordinator) log() *logging.Logger {
	return c.logger.Named("directory_watcher")
}

func (c *Coordinator) newSession(p config.Project) *Session {
	opts := append([]SessionOption{
		WithSessionLogger(c.logger),
		WithSessionMetrics(c.metrics),
	}, c.sessionOpts...)
	return NewSession(p, c.engine, opts...)
}

// Start performs one initial sync per project, in list order, and registers a
// watch for every project with Watch set. A project whose source is missing or
// whose watch cannot be registered is logged and skipped; the rest proceed.
// Cancelling ctx skips the projects not yet started. Start returns an error
// only if the coordinator is not idle.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return errors.Errorf("coordinator cannot start from state %s", state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	for _, p := range c.projects {
		if c.State() != StateStarting {
			break
		}
		if ctx.Err() != nil {
			c.log().Info("Shutdown requested, skipping remaining projects")
			break
		}
		if err := c.setupProject(ctx, p); err != nil {
			c.log().ErrorErr(fmt.Sprintf("Error setting up watcher for %s", p.Name), err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStarting {
		c.state = StateWatching
	}
	c.metrics.SetWatched(len(c.registrations))
	return nil
}

// setupProject runs the initial sync and, if enabled, registers the watch.
// Panics from the notifier are converted to errors so one project cannot
// abort the others.
func (c *Coordinator) setupProject(ctx context.Context, p config.Project) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errclass.ErrWatchSetup.WithMessagef("panic: %v", r)
		}
	}()

	plog := c.log().WithFields(map[string]any{"project": p.Name})
	if _, statErr := os.Stat(p.Src); statErr != nil {
		plog.Error(fmt.Sprintf("Source directory does not exist: %s", p.Src))
		return nil
	}

	session := c.newSession(p)
	c.mu.Lock()
	c.sessions = append(c.sessions, session)
	c.mu.Unlock()

	c.log().Info(fmt.Sprintf("Performing initial sync for project: %s", p.Name))
	session.SyncNow(context.WithoutCancel(ctx))

	if !p.Watch {
		c.log().Info(fmt.Sprintf("Watching disabled for project: %s", p.Name))
		return nil
	}

	handle, err := c.notifier.Watch(p.Src, session)
	if err != nil {
		return errclass.ErrWatchSetup.WithMessage(err.Error())
	}

	c.mu.Lock()
	if c.state != StateStarting {
		// Stop began while this watch was being registered.
		c.mu.Unlock()
		handle.Stop()
		handle.Wait()
		return nil
	}
	c.registrations = append(c.registrations, registration{project: p.Name, handle: handle})
	c.mu.Unlock()

	c.log().Info(fmt.Sprintf("Started watching directory: %s for project '%s'", p.Src, p.Name))
	return nil
}

// RunOnce syncs every project exactly once, in list order, without
// registering any watch. It returns the number of failed syncs. Cancelling
// ctx skips the projects not yet started; a sync already running completes.
func (c *Coordinator) RunOnce(ctx context.Context) int {
	failed := 0
	for _, p := range c.projects {
		if ctx.Err() != nil {
			c.log().Info("Shutdown requested, skipping remaining projects")
			break
		}
		session := c.newSession(p)
		c.mu.Lock()
		c.sessions = append(c.sessions, session)
		c.mu.Unlock()

		c.log().Info(fmt.Sprintf("Syncing project: %s", p.Name))
		if !session.SyncNow(context.WithoutCancel(ctx)).Success {
			failed++
		}
	}
	return failed
}

// Stop asks every registration to stop, then waits for each in registration
// order. In-flight syncs finish before Stop returns. Calling Stop again, or
// on a coordinator with no registrations, is a no-op apart from the state
// change.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateStopping || c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	regs := c.registrations
	c.registrations = nil
	c.mu.Unlock()

	for _, r := range regs {
		r.handle.Stop()
	}
	for _, r := range regs {
		r.handle.Wait()
	}

	c.mu.Lock()
	c.state = StateStopped
	c.metrics.SetWatched(0)
	c.mu.Unlock()

	c.log().Info("All directory watchers stopped")
}
