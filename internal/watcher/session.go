package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/autosync-project/autosync/internal/engine"
	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/logging"
	"github.com/autosync-project/autosync/pkg/metrics"
)

// DefaultCooldown is the minimum time between event-triggered syncs of one project.
const DefaultCooldown = 2 * time.Second

// transientSuffixes mark editor and temp artifacts that never trigger a sync.
var transientSuffixes = []string{".swp", ".tmp", "~", ".bak"}

// IsTransient reports whether path names an editor or temp artifact.
func IsTransient(path string) bool {
	for _, suffix := range transientSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Session owns one project's debounce state and turns qualifying filesystem
// events into syncs.
type Session struct {
	project  config.Project
	engine   engine.Engine
	logger   *logging.Logger
	metrics  *metrics.Registry
	cooldown time.Duration
	now      func() time.Time
	observe  []SyncObserver

	mu       sync.Mutex
	lastSync time.Time
}

// SyncObserver is called after every sync a session runs, successful or not.
type SyncObserver func(project config.Project, result engine.Result)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) SessionOption {
	return func(s *Session) { s.cooldown = d }
}

// WithClock replaces time.Now for debounce decisions.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionLogger sets the logger the session derives its scope from.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionMetrics records sync and event outcomes in r.
func WithSessionMetrics(r *metrics.Registry) SessionOption {
	return func(s *Session) { s.metrics = r }
}

// WithSyncObserver registers o to be told about every completed sync.
func WithSyncObserver(o SyncObserver) SessionOption {
	return func(s *Session) { s.observe = append(s.observe, o) }
}

// NewSession creates a session for project backed by eng.
func NewSession(project config.Project, eng engine.Engine, opts ...SessionOption) *Session {
	s := &Session{
		project:  project,
		engine:   eng,
		logger:   logging.Discard(),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("watcher_" + project.Name)
	return s
}

// HandleEvent applies the transient-file filter and the cooldown gate, then
// syncs. Events inside the cooldown window are dropped, not queued.
func (s *Session) HandleEvent(ev Event) {
	if ev.IsDir || IsTransient(ev.Path) {
		s.metrics.RecordEvent(s.project.Name, metrics.EventIgnored)
		return
	}

	if !s.acquire() {
		s.metrics.RecordEvent(s.project.Name, metrics.EventDebounced)
		s.logger.Debug(fmt.Sprintf("Change within cooldown ignored: %s - %s", ev.Op, ev.Path))
		return
	}

	s.metrics.RecordEvent(s.project.Name, metrics.EventSynced)
	s.logger.Info(fmt.Sprintf("Change detected: %s - %s", ev.Op, ev.Path))

	// In-flight syncs are not cancelled by shutdown; Stop waits for them.
	s.SyncNow(context.Background())
}

// acquire claims the current cooldown window. The check and the update of
// lastSync happen under one lock so concurrent callers cannot both pass.
func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastSync.IsZero() && now.Sub(s.lastSync) < s.cooldown {
		return false
	}
	s.lastSync = now
	return true
}

// LastSync returns the time of the last event-triggered sync, or the zero time.
func (s *Session) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SyncNow runs the engine for the project and logs the outcome. It does not
// touch the cooldown window.
func (s *Session) SyncNow(ctx context.Context) engine.Result {
	result := s.engine.Sync(ctx, s.project.Src, s.project.Dst, s.project.Exclude)
	s.metrics.RecordSync(s.project.Name, result.Success, result.Duration)
	if !result.Success {
		s.logger.Warn("Sync failed, project stays out of date until the next change", map[string]any{
			"src": s.project.Src,
			"dst": s.project.Dst,
		})
	}
	for _, o := range s.observe {
		o(s.project, result)
	}
	return result
}
