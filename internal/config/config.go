// Package config handles TOML configuration loading with environment
// variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Downloads DownloadsConfig `toml:"downloads"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Sources   SourcesConfig   `toml:"sources"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// DiscoveryConfig bounds one discovery run.
type DiscoveryConfig struct {
	Interval        duration `toml:"interval"`            // default per-artist re-discovery interval
	MaxNewPerArtist int      `toml:"max_new_per_artist"`  // cap on new videos persisted per artist per run
	BreakAfter      int      `toml:"break_after"`         // consecutive failures before a source is skipped
	SourceDelay     duration `toml:"source_delay"`        // default minimum gap between calls to one source
}

// DownloadsConfig bounds the download pipeline.
type DownloadsConfig struct {
	Root        string `toml:"root"`
	Workers     int    `toml:"workers"`
	MaxPerSweep int    `toml:"max_per_sweep"`
	MaxRetries  int    `toml:"max_retries"`
}

// ScheduleConfig carries the two timed triggers. Read once per scheduler
// tick; reload swaps the whole snapshot.
type ScheduleConfig struct {
	Discovery Trigger `toml:"discovery"`
	Download  Trigger `toml:"download"`
}

// Cadence is how often a trigger fires.
type Cadence string

const (
	CadenceHourly Cadence = "hourly"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceCustom Cadence = "custom" // specific weekdays at a time of day
)

// Trigger is one timed trigger's configuration.
type Trigger struct {
	Enabled bool     `toml:"enabled"`
	Cadence Cadence  `toml:"cadence"`
	At      string   `toml:"at"`   // "HH:MM", ignored for hourly
	Days    []string `toml:"days"` // weekday names, custom cadence only
}

type SourcesConfig struct {
	Priority []string      `toml:"priority"` // metadata trust order for dedup tie-breaks
	YouTube  *SourceConfig `toml:"youtube"`
	IMVDb    *SourceConfig `toml:"imvdb"`
}

type SourceConfig struct {
	APIKey      string   `toml:"api_key"`
	URL         string   `toml:"url"` // override, mainly for testing
	MinInterval duration `toml:"min_interval"`
}

// duration decodes TOML strings like "90m" or "2s" into a time.Duration.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Load reads, substitutes, parses, defaults, and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8573
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/mvarr.db"
	}
	if c.Discovery.Interval.Duration == 0 {
		c.Discovery.Interval.Duration = 24 * time.Hour
	}
	if c.Discovery.MaxNewPerArtist == 0 {
		c.Discovery.MaxNewPerArtist = 25
	}
	if c.Discovery.BreakAfter == 0 {
		c.Discovery.BreakAfter = 3
	}
	if c.Discovery.SourceDelay.Duration == 0 {
		c.Discovery.SourceDelay.Duration = 2 * time.Second
	}
	if c.Downloads.Workers == 0 {
		c.Downloads.Workers = 3
	}
	if c.Downloads.MaxPerSweep == 0 {
		c.Downloads.MaxPerSweep = 10
	}
	if c.Downloads.MaxRetries == 0 {
		c.Downloads.MaxRetries = 5
	}
	if c.Schedule.Discovery.Cadence == "" {
		c.Schedule.Discovery = Trigger{Enabled: true, Cadence: CadenceDaily, At: "03:00"}
	}
	if c.Schedule.Download.Cadence == "" {
		c.Schedule.Download = Trigger{Enabled: true, Cadence: CadenceHourly}
	}
	if len(c.Sources.Priority) == 0 {
		c.Sources.Priority = []string{"imvdb", "youtube"}
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1] // Strip ${ and }
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match // Leave unchanged if not found
	})
}

// SourceDelays returns the per-source minimum call intervals.
func (c *Config) SourceDelays() map[string]time.Duration {
	delays := make(map[string]time.Duration)
	if c.Sources.YouTube != nil && c.Sources.YouTube.MinInterval.Duration > 0 {
		delays["youtube"] = c.Sources.YouTube.MinInterval.Duration
	}
	if c.Sources.IMVDb != nil && c.Sources.IMVDb.MinInterval.Duration > 0 {
		delays["imvdb"] = c.Sources.IMVDb.MinInterval.Duration
	}
	return delays
}
