package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models coordline.yml.
type Config struct {
	Engine   EngineConfig    `yaml:"engine"`
	Server   ServerConfig    `yaml:"server"`
	Storage  StorageConfig   `yaml:"storage"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type EngineConfig struct {
	MaxActiveWork        int     `yaml:"max_active_work"`
	FieldImpactThreshold float64 `yaml:"field_impact_threshold"`
	PauseMinutes         int     `yaml:"pause_minutes"`
	CeremonyAlignment    bool    `yaml:"ceremony_alignment"`
	InitialLoadMetric    float64 `yaml:"initial_load_metric"`
	EventBuffer          int     `yaml:"event_buffer"`
}

// PauseDuration is the advisory pause announced after a completion.
func (e EngineConfig) PauseDuration() time.Duration {
	return time.Duration(e.PauseMinutes) * time.Minute
}

type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	BasePath       string  `yaml:"base_path"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type StorageConfig struct {
	Journal   bool   `yaml:"journal"`
	Workspace string `yaml:"workspace"`
}

// WebhookConfig forwards journaled events to an HTTP endpoint. An empty
// Events list forwards every type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with cl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	e := c.Engine
	if e.MaxActiveWork <= 0 {
		return fmt.Errorf("config.engine.max_active_work must be positive")
	}
	if e.FieldImpactThreshold < 0 {
		return fmt.Errorf("config.engine.field_impact_threshold must not be negative")
	}
	if e.PauseMinutes < 0 {
		return fmt.Errorf("config.engine.pause_minutes must not be negative")
	}
	if !(e.InitialLoadMetric >= 0 && e.InitialLoadMetric <= 100) {
		return fmt.Errorf("config.engine.initial_load_metric must be within 0..100")
	}
	if e.EventBuffer <= 0 {
		return fmt.Errorf("config.engine.event_buffer must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("config.server.rate_limit_rps must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("config.server.rate_limit_burst must be positive when rate limiting is enabled")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if len(c.Webhooks) > 0 && !c.Storage.Journal {
		return fmt.Errorf("config.webhooks require storage.journal")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "coordline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
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
// from data keep their default values.
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

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `engine:
  max_active_work: 7
  field_impact_threshold: 5
  pause_minutes: 3
  ceremony_alignment: true
  initial_load_metric: 50
  event_buffer: 256

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  rate_limit_rps: 20
  rate_limit_burst: 40

storage:
  journal: true
  workspace: .
`
