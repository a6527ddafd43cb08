package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"taskroute/internal/domain"
)

// Config models taskroute.yml.
type Config struct {
	Workflow struct {
		EnforceTransitions bool                `yaml:"enforce_transitions"`
		Transitions        map[string][]string `yaml:"transitions"`
	} `yaml:"workflow"`
	Listing struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"listing"`
	Sessions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"sessions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with tr config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Workflow.Transitions) == 0 {
		return fmt.Errorf("config.workflow.transitions is required")
	}
	for from, targets := range c.Workflow.Transitions {
		if !domain.Status(from).Valid() {
			return fmt.Errorf("config.workflow.transitions has unknown status %s", from)
		}
		for _, to := range targets {
			if !domain.Status(to).Valid() {
				return fmt.Errorf("transition %s -> %s targets unknown status", from, to)
			}
			if to == from {
				return fmt.Errorf("transition %s -> %s is a self loop", from, to)
			}
		}
	}
	if c.Listing.DefaultLimit <= 0 {
		return fmt.Errorf("config.listing.default_limit must be positive")
	}
	if c.Listing.MaxLimit < c.Listing.DefaultLimit {
		return fmt.Errorf("config.listing.max_limit must be >= default_limit")
	}
	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	return nil
}

// Allows reports whether the table permits from -> to.
func (c *Config) Allows(from, to domain.Status) bool {
	for _, target := range c.Workflow.Transitions[string(from)] {
		if domain.Status(target) == to {
			return true
		}
	}
	return false
}

// Targets lists the statuses reachable from a status, sorted.
func (c *Config) Targets(from domain.Status) []string {
	out := append([]string(nil), c.Workflow.Transitions[string(from)]...)
	sort.Strings(out)
	return out
}

// SessionTTL parses sessions.ttl.
func (c *Config) SessionTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Sessions.TTL)
	if err != nil {
		return 0, fmt.Errorf("config.sessions.ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("config.sessions.ttl must be positive")
	}
	return ttl, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskroute.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workflow:
  # false accepts any status after any other, the legacy behavior
  enforce_transitions: true
  transitions:
    draft: [pending, cancelled]
    pending: [in_progress, rejected, cancelled]
    in_progress: [submitted, cancelled]
    submitted: [under_review, approved, rejected, in_progress]
    under_review: [approved, rejected, in_progress]
    approved: [completed]
    rejected: [in_progress, cancelled]
    completed: []
    cancelled: []

listing:
  default_limit: 50
  max_limit: 200

sessions:
  ttl: 720h
`
