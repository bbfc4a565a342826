// Package supervisor is the process entry orchestration: it loads the
// configuration, builds the coordinator, wires shutdown signals and runs
// either a one-shot pass or continuous watching.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/autosync-project/autosync/internal/engine"
	"github.com/autosync-project/autosync/internal/watcher"
	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/errclass"
	"github.com/autosync-project/autosync/pkg/logging"
	"github.com/autosync-project/autosync/pkg/metrics"
	"github.com/autosync-project/autosync/pkg/webhook"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
)

// Options selects the run mode and its collaborators. Zero values pick the
// production implementations.
type Options struct {
	ConfigPath  string
	LogPath     string
	Once        bool
	MetricsAddr string
	LogLevel    logging.Level

	// Stdout receives log lines. Defaults to os.Stdout.
	Stdout io.Writer
	// Signals that request shutdown. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal

	// Engine and Notifier replace rsync and fsnotify.
	Engine   engine.Engine
	Notifier watcher.Notifier
	// SessionOptions are passed to every project session.
	SessionOptions []watcher.SessionOption
}

// Supervisor holds everything the shutdown path needs: the coordinator, the
// logger and the metrics server. Nothing is kept in package variables.
type Supervisor struct {
	opts        Options
	sink        *logging.Sink
	logger      *logging.Logger
	metrics     *metrics.Registry
	cfg         *config.Config
	coordinator *watcher.Coordinator
	server      *http.Server
	hooks       *webhook.Client
	fatal       chan error
}

// Run executes one process lifetime and returns the exit code.
func Run(ctx context.Context, opts Options) int {
	s, err := New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autosync: %v\n", err)
		return ExitError
	}
	defer s.Close()
	return s.Run(ctx)
}

// New prepares logging. Configuration is loaded by Run so that load failures
// are reported through the log stream.
func New(opts Options) (*Supervisor, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath
	}
	if opts.LogLevel == "" {
		opts.LogLevel = logging.LevelFromEnv()
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	sink, err := logging.NewSink(logging.SinkOptions{Stdout: opts.Stdout, FilePath: opts.LogPath})
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		opts:    opts,
		sink:    sink,
		logger:  logging.NewLogger("main", opts.LogLevel, sink),
		metrics: metrics.NewRegistry(),
		fatal:   make(chan error, 1),
	}, nil
}

// Metrics returns the supervisor's registry.
func (s *Supervisor) Metrics() *metrics.Registry {
	return s.metrics
}

// Coordinator returns the coordinator, or nil before configuration loaded.
func (s *Supervisor) Coordinator() *watcher.Coordinator {
	return s.coordinator
}

// Close releases the log file.
func (s *Supervisor) Close() error {
	return s.sink.Close()
}

// Run loads the configuration and runs the selected mode until it finishes,
// a shutdown signal arrives, or an unexpected error occurs.
func (s *Supervisor) Run(ctx context.Context) (code int) {
	ctx, stopSignals := installSignals(ctx, s.opts.Signals)
	defer stopSignals()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("Unexpected error: %v", r))
			s.shutdown()
			code = ExitError
		}
	}()

	if err := s.load(); err != nil {
		switch {
		case errors.Is(err, errclass.ErrNoProjects):
			s.logger.Error("No projects found in configuration file")
		case errclass.IsFatal(err):
			s.logger.ErrorErr("Failed to load configuration", err)
		default:
			s.logger.ErrorErr("Unexpected error", err)
		}
		return ExitError
	}

	if s.opts.Once {
		return s.runOnce(ctx)
	}
	return s.runContinuous(ctx)
}

func (s *Supervisor) load() error {
	path, err := filepath.Abs(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	s.logger.Info(fmt.Sprintf("Loading configuration from %s", path))

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.logger.Info(fmt.Sprintf("Loaded %d project(s)", len(cfg.Projects)))
	for _, w := range cfg.Warnings {
		s.logger.Warn(w + ", passing it to rsync unchanged")
	}

	eng := s.opts.Engine
	if eng == nil {
		eng = engine.NewEngine(cfg.Rsync, s.logger.Named("synchronizer"))
	}
	notifier := s.opts.Notifier
	if notifier == nil {
		fsn := watcher.NewFSNotifier(s.logger.Named("notifier"))
		fsn.OnPanic = s.Fail
		notifier = fsn
	}
	sessionOpts := s.opts.SessionOptions
	if len(cfg.Webhooks) > 0 {
		s.hooks = webhook.NewClient(webhookConfig(cfg.Webhooks), s.logger)
		sessionOpts = append(sessionOpts[:len(sessionOpts):len(sessionOpts)], watcher.WithSyncObserver(s.notify))
		s.logger.Info(fmt.Sprintf("Notifying %d webhook(s) of sync results", len(cfg.Webhooks)))
	}
	s.coordinator = watcher.NewCoordinator(cfg.Projects, eng, notifier,
		watcher.WithLogger(s.logger),
		watcher.WithMetrics(s.metrics),
		watcher.WithSessionOptions(sessionOpts...),
	)
	return nil
}

func webhookConfig(hooks []config.Webhook) *webhook.Config {
	cfg := webhook.DefaultConfig()
	for _, h := range hooks {
		hc := webhook.HookConfig{URL: h.URL, Secret: h.Secret, Timeout: h.Timeout}
		for _, ev := range h.Events {
			hc.Events = append(hc.Events, webhook.EventType(ev))
		}
		cfg.Hooks = append(cfg.Hooks, hc)
	}
	return cfg
}

// notify forwards a sync outcome to the webhook client.
func (s *Supervisor) notify(p config.Project, r engine.Result) {
	ev := webhook.Event{
		Event:      webhook.EventSyncSucceeded,
		Project:    p.Name,
		Src:        p.Src,
		Dst:        p.Dst,
		ExitCode:   r.ExitCode,
		DurationMS: r.Duration.Milliseconds(),
	}
	if !r.Success {
		ev.Event = webhook.EventSyncFailed
		ev.Error = r.Stderr
	}
	s.hooks.Notify(ev)
}

func (s *Supervisor) runOnce(ctx context.Context) int {
	s.logger.Info("Performing one-time sync for all projects")
	failed := s.coordinator.RunOnce(ctx)
	if failed > 0 {
		s.logger.Warn(fmt.Sprintf("%d of %d project(s) failed to sync", failed, len(s.cfg.Projects)))
	}
	s.closeHooks()
	s.logger.Info("One-time sync completed, exiting")
	return ExitOK
}

func (s *Supervisor) runContinuous(ctx context.Context) int {
	if s.opts.MetricsAddr != "" {
		if err := s.startMetricsServer(); err != nil {
			s.logger.ErrorErr("Unexpected error", err)
			return ExitError
		}
	}

	s.logger.Info("Starting directory watcher")
	if err := s.coordinator.Start(ctx); err != nil {
		s.logger.ErrorErr("Unexpected error", err)
		s.shutdown()
		return ExitError
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Received interrupt signal, shutting down...")
		s.shutdown()
		return ExitOK
	case err := <-s.fatal:
		s.logger.ErrorErr("Unexpected error", err)
		s.shutdown()
		return ExitError
	}
}

// Fail reports an unexpected runtime error; continuous mode stops and exits 1.
func (s *Supervisor) Fail(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

func (s *Supervisor) shutdown() {
	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorErr("Metrics server shutdown", err)
		}
		s.server = nil
	}
	s.closeHooks()
}

// closeHooks flushes queued webhook deliveries. Later notifications are dropped.
func (s *Supervisor) closeHooks() {
	if s.hooks != nil {
		s.hooks.Close()
	}
}

func (s *Supervisor) startMetricsServer() error {
	ln, err := net.Listen("tcp", s.opts.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Fail(fmt.Errorf("metrics server: %w", err))
		}
	}()
	s.logger.Info(fmt.Sprintf("Serving metrics on http://%s/metrics", ln.Addr()))
	return nil
}
