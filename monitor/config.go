package monitor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Renderer modes.
const (
	RenderRod  = "rod"  // headless Chrome for every target
	RenderHTTP = "http" // static GET only
	RenderAuto = "auto" // static GET, browser when the page looks client-rendered
)

// Config configures the monitor service. Durations in YAML are Go
// duration strings ("30s", "1m30s").
type Config struct {
	// ChangePolicy is "fingerprint" (default) or "always".
	ChangePolicy string `yaml:"change_policy"`
	// Workers bounds concurrently processed targets.
	Workers int `yaml:"workers"`
	// Schedule is an optional cron expression for periodic runs.
	Schedule        string        `yaml:"schedule"`
	ScheduleTimeout time.Duration `yaml:"schedule_timeout"`
	// ArchiveDir enables markdown snapshots of baselines and changes.
	ArchiveDir string `yaml:"archive_dir"`

	Render RenderConfig `yaml:"render"`
	Notify NotifyConfig `yaml:"notify"`
	Events EventsConfig `yaml:"events"`
}

// RenderConfig selects and tunes the page renderer.
type RenderConfig struct {
	Mode           string        `yaml:"mode"`
	RemoteURL      string        `yaml:"remote_url"`
	ChromeBin      string        `yaml:"chrome_bin"`
	NavTimeout     time.Duration `yaml:"nav_timeout"`
	Settle         time.Duration `yaml:"settle"`
	BlockResources []string      `yaml:"block_resources"`
	NoStealth      bool          `yaml:"no_stealth"`
	UserAgent      string        `yaml:"user_agent"`
}

// NotifyConfig selects the alert channel. SendGrid wins over the webhook;
// with neither configured, alerts are written to stdout.
type NotifyConfig struct {
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	From           string        `yaml:"from"`
	FromName       string        `yaml:"from_name"`
	WebhookURL     string        `yaml:"webhook_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

// EventsConfig enables NATS events when URL is set.
type EventsConfig struct {
	URL       string `yaml:"url"`
	JetStream bool   `yaml:"jetstream"`
}

func (c *Config) defaults() {
	if c.ChangePolicy == "" {
		c.ChangePolicy = "fingerprint"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ScheduleTimeout <= 0 {
		c.ScheduleTimeout = 30 * time.Minute
	}
	if c.Render.Mode == "" {
		c.Render.Mode = RenderRod
	}
	if c.Render.UserAgent == "" {
		c.Render.UserAgent = "Mozilla/5.0 (compatible; pricewatch/1.0)"
	}
	if c.Notify.From == "" {
		c.Notify.From = "alerts@pricewatch.local"
	}
	if c.Notify.FromName == "" {
		c.Notify.FromName = "pricewatch"
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 30 * time.Second
	}
	if c.Notify.RatePerSecond <= 0 {
		c.Notify.RatePerSecond = 5
	}
	if c.Notify.Burst <= 0 {
		c.Notify.Burst = 1
	}
}

func (c *Config) validate() error {
	switch c.Render.Mode {
	case RenderRod, RenderHTTP, RenderAuto:
	default:
		return fmt.Errorf("monitor: unknown render mode %q", c.Render.Mode)
	}
	return nil
}

// LoadConfigFile reads a YAML config. Unknown keys are rejected; an empty
// file yields the zero Config.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("monitor: open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("monitor: parse config %s: %w", path, err)
	}
	return &cfg, nil
}
