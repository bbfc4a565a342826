// Package engine runs the external synchronization tool that mirrors a
// project's source directory into its destination.
package engine

import (
	"os/exec"

	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/errclass"
	"github.com/autosync-project/autosync/pkg/logging"
)

// NewEngine creates the engine described by cfg.
func NewEngine(cfg config.RsyncConfig, logger *logging.Logger) Engine {
	return NewRsyncEngine(cfg, logger)
}

// Available reports whether the tool at path can be found on PATH.
func Available(path string) error {
	if path == "" {
		path = "rsync"
	}
	if _, err := exec.LookPath(path); err != nil {
		return errclass.ErrToolNotFound.WithMessagef("%s: %v", path, err)
	}
	return nil
}
