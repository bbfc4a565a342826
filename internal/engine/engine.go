package engine

import (
	"context"
	"time"
)

// Result is the outcome of one sync attempt.
type Result struct {
	Success bool
	// ExitCode is nil when the tool never ran to completion (missing source,
	// spawn failure, killed by timeout).
	ExitCode *int
	Stdout   string
	// Stderr holds the tool's standard error, or the failure reason when the
	// tool could not be run.
	Stderr   string
	Duration time.Duration
}

// Engine mirrors a source directory into a destination.
type Engine interface {
	// Name returns the engine identifier used in logs.
	Name() string

	// Sync mirrors src into dst, skipping paths matching exclude. It blocks
	// until the sync finishes and never returns an error; failures are
	// reported through Result.
	Sync(ctx context.Context, src, dst string, exclude []string) Result
}
