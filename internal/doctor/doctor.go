// Package doctor inspects a loaded configuration for problems that would
// make synchronization fail or misbehave at runtime.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/autosync-project/autosync/internal/engine"
	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/pathutil"
)

// Severity levels. Only critical findings mark the result unhealthy.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Project     string `json:"project,omitempty"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs configuration health checks.
type Doctor struct {
	cfg       *config.Config
	available func(string) error
}

// NewDoctor creates a new doctor for cfg.
func NewDoctor(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, available: engine.Available}
}

// Check runs all diagnostic checks.
func (d *Doctor) Check() (*Result, error) {
	if d.cfg == nil {
		return nil, fmt.Errorf("doctor: no configuration")
	}
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkTool(result)
	for _, w := range d.cfg.Warnings {
		result.add(Finding{Category: "config", Description: w, Severity: SeverityWarning})
	}
	for _, p := range d.cfg.Projects {
		d.checkSource(result, p)
		d.checkDestination(result, p)
		d.checkOverlap(result, p)
	}
	return result, nil
}

func (r *Result) add(f Finding) {
	if f.Severity == SeverityCritical {
		r.Healthy = false
	}
	r.Findings = append(r.Findings, f)
}

func (d *Doctor) checkTool(result *Result) {
	if err := d.available(d.cfg.Rsync.Path); err != nil {
		result.add(Finding{
			Category:    "tool",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        d.cfg.Rsync.Path,
		})
	}
}

func (d *Doctor) checkSource(result *Result, p config.Project) {
	info, err := os.Stat(p.Src)
	switch {
	case os.IsNotExist(err):
		sev := SeverityWarning
		if p.Watch {
			sev = SeverityCritical
		}
		result.add(Finding{
			Category:    "source",
			Project:     p.Name,
			Description: "source path does not exist",
			Severity:    sev,
			Path:        p.Src,
		})
	case err != nil:
		result.add(Finding{
			Category:    "source",
			Project:     p.Name,
			Description: fmt.Sprintf("cannot stat source: %v", err),
			Severity:    SeverityCritical,
			Path:        p.Src,
		})
	case !info.IsDir() && p.Watch:
		result.add(Finding{
			Category:    "source",
			Project:     p.Name,
			Description: "watched source is not a directory",
			Severity:    SeverityWarning,
			Path:        p.Src,
		})
	}
}

func (d *Doctor) checkDestination(result *Result, p config.Project) {
	parent := filepath.Dir(filepath.Clean(p.Dst))
	if ancestor := pathutil.ExistingAncestor(parent); ancestor != parent {
		result.add(Finding{
			Category:    "destination",
			Project:     p.Name,
			Description: fmt.Sprintf("destination parent does not exist (nearest existing: %s)", ancestor),
			Severity:    SeverityWarning,
			Path:        parent,
		})
	}
}

func (d *Doctor) checkOverlap(result *Result, p config.Project) {
	src := filepath.Clean(p.Src)
	dst := filepath.Clean(p.Dst)
	switch {
	case within(dst, src):
		result.add(Finding{
			Category:    "overlap",
			Project:     p.Name,
			Description: "destination is inside the watched source; every sync would trigger another",
			Severity:    SeverityCritical,
			Path:        dst,
		})
	case within(src, dst):
		result.add(Finding{
			Category:    "overlap",
			Project:     p.Name,
			Description: "source is inside the destination",
			Severity:    SeverityWarning,
			Path:        src,
		})
	}
}

// within reports whether path equals dir or lies beneath it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

