package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/errclass"
	"github.com/autosync-project/autosync/pkg/logging"
)

// RsyncEngine mirrors directories by running rsync as a child process.
type RsyncEngine struct {
	Path    string
	Flags   string
	Timeout time.Duration
	Runner  Runner
	Logger  *logging.Logger
}

// NewRsyncEngine creates an RsyncEngine from cfg. A nil logger discards output.
func NewRsyncEngine(cfg config.RsyncConfig, logger *logging.Logger) *RsyncEngine {
	if logger == nil {
		logger = logging.Discard()
	}
	path := cfg.Path
	if path == "" {
		path = "rsync"
	}
	flags := cfg.Flags
	if flags == "" {
		flags = "-aP"
	}
	return &RsyncEngine{
		Path:    path,
		Flags:   flags,
		Timeout: cfg.Timeout,
		Runner:  ExecRunner{},
		Logger:  logger,
	}
}

// Name returns the engine type.
func (e *RsyncEngine) Name() string {
	return "rsync"
}

// Args builds the argument list: flags, one --exclude pair per pattern in
// order, then src and dst. Patterns are passed through untouched.
func (e *RsyncEngine) Args(src, dst string, exclude []string) []string {
	args := strings.Fields(e.Flags)
	for _, pattern := range exclude {
		args = append(args, "--exclude", pattern)
	}
	return append(args, src, dst)
}

// Sync runs rsync for src into dst and waits for it to exit. Only exit code 0
// counts as success.
func (e *RsyncEngine) Sync(ctx context.Context, src, dst string, exclude []string) Result {
	if _, err := os.Stat(src); err != nil {
		e.Logger.Error(fmt.Sprintf("Source path does not exist: %s", src))
		return Result{Stderr: errclass.ErrSourceMissing.WithMessage(src).Error()}
	}

	args := e.Args(src, dst, exclude)
	e.Logger.Info(fmt.Sprintf("Executing rsync command: %s %s", e.Path, strings.Join(args, " ")))

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, code, err := e.Runner.Run(ctx, e.Path, args...)
	result := Result{
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
	}

	if err != nil {
		e.Logger.ErrorErr("Exception during sync", err)
		if result.Stderr == "" {
			result.Stderr = err.Error()
		} else {
			result.Stderr = strings.TrimRight(result.Stderr, "\n") + "\n" + err.Error()
		}
		return result
	}

	result.ExitCode = &code
	if code != 0 {
		e.Logger.Error(fmt.Sprintf("Sync failed with error code %d", code))
		e.Logger.Error(fmt.Sprintf("Error: %s", stderr))
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("%s exited with code %d", e.Path, code)
		}
		return result
	}

	result.Success = true
	e.Logger.Info(fmt.Sprintf("Sync successful from %s to %s", src, dst))
	e.Logger.Debug(fmt.Sprintf("Rsync output: %s", stdout))
	return result
}
