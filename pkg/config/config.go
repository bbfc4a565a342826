// Package config loads and validates the autosync project list.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/autosync-project/autosync/pkg/errclass"
	"github.com/autosync-project/autosync/pkg/pathutil"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/sync_config.yml"

// Config represents the autosync configuration file.
type Config struct {
	Projects []Project   `yaml:"projects" json:"projects"`
	Rsync    RsyncConfig `yaml:"rsync" json:"rsync"`
	Webhooks []Webhook   `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`

	// Warnings lists problems found by Validate that do not stop a load.
	Warnings []string `yaml:"-" json:"-"`
}

// Project is one source to destination mirror. Immutable after Load.
type Project struct {
	Name    string   `yaml:"name" json:"name"`
	Src     string   `yaml:"src" json:"src"`
	Dst     string   `yaml:"dst" json:"dst"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Watch   bool     `yaml:"watch" json:"watch"`
}

// RsyncConfig configures the external synchronization tool.
type RsyncConfig struct {
	Path    string        `yaml:"path" json:"path"`
	Flags   string        `yaml:"flags" json:"flags"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"` // 0 waits forever
}

// Webhook is an HTTP endpoint notified after syncs. Events may contain
// "sync.succeeded", "sync.failed" or "*"; empty means failures only.
type Webhook struct {
	URL     string        `yaml:"url" json:"url"`
	Secret  string        `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events  []string      `yaml:"events,omitempty" json:"events,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

var webhookEvents = map[string]bool{"sync.succeeded": true, "sync.failed": true, "*": true}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Rsync: RsyncConfig{
			Path:  "rsync",
			Flags: "-aP",
		},
	}
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errclass.ErrConfigNotFound.WithMessagef("config file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("error parsing config file: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every project eagerly and normalises names and paths in
// place. All problems are reported together. Exclude patterns are handed to
// rsync verbatim, so one that is not a valid glob only adds to Warnings.
func (c *Config) Validate() error {
	c.Warnings = nil
	if len(c.Projects) == 0 {
		return errclass.ErrNoProjects.WithMessage("no projects found in configuration file")
	}
	if c.Rsync.Path == "" {
		c.Rsync.Path = "rsync"
	}
	if c.Rsync.Timeout < 0 {
		return errclass.ErrConfigInvalid.WithMessagef("rsync.timeout must not be negative: %s", c.Rsync.Timeout)
	}

	var problems []string
	seen := make(map[string]int)
	for i := range c.Projects {
		p := &c.Projects[i]
		label := fmt.Sprintf("project %d", i)
		if p.Name != "" {
			label = fmt.Sprintf("project %d (%s)", i, p.Name)
		}

		name, err := pathutil.NormalizeName(p.Name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", label, err))
		} else {
			if prev, dup := seen[name]; dup {
				problems = append(problems, fmt.Sprintf("%s: duplicate name, first used by project %d", label, prev))
			}
			seen[name] = i
			p.Name = name
		}

		if p.Src == "" {
			problems = append(problems, label+": src is required")
		} else if p.Src, err = pathutil.ExpandPath(p.Src); err != nil {
			problems = append(problems, fmt.Sprintf("%s: src: %v", label, err))
		}
		if p.Dst == "" {
			problems = append(problems, label+": dst is required")
		} else if p.Dst, err = pathutil.ExpandPath(p.Dst); err != nil {
			problems = append(problems, fmt.Sprintf("%s: dst: %v", label, err))
		}

		for _, pattern := range p.Exclude {
			if pattern == "" || !doublestar.ValidatePattern(pattern) {
				c.Warnings = append(c.Warnings, fmt.Sprintf("%s: exclude pattern %q is not a valid glob", label, pattern))
			}
		}
	}

	for i, h := range c.Webhooks {
		label := fmt.Sprintf("webhook %d", i)
		if u, err := url.Parse(h.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: url must be an http(s) URL: %q", label, h.URL))
		}
		for _, ev := range h.Events {
			if !webhookEvents[ev] {
				problems = append(problems, fmt.Sprintf("%s: unknown event %q", label, ev))
			}
		}
		if h.Timeout < 0 {
			problems = append(problems, label+": timeout must not be negative")
		}
	}

	if len(problems) > 0 {
		return errclass.ErrConfigInvalid.WithMessage(strings.Join(problems, "; "))
	}
	return nil
}

// Watched returns the projects with watching enabled, in list order.
func (c *Config) Watched() []Project {
	var out []Project
	for _, p := range c.Projects {
		if p.Watch {
			out = append(out, p)
		}
	}
	return out
}

// Redacted returns a copy of c with webhook secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Webhooks = nil
	for _, h := range c.Webhooks {
		if h.Secret != "" {
			h.Secret = "********"
		}
		out.Webhooks = append(out.Webhooks, h)
	}
	return &out
}
