// Package config loads the clipbridge YAML configuration and watches it
// for live changes. A missing config file is not an error: every field
// has a default, so a bare `clipbridge run` works out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRelayBaseURL is the relay service used when none is configured.
const DefaultRelayBaseURL = "https://relay.clipbridge.dev"

// Config is the root configuration tree, mapped from
// ~/.clipbridge/config.yaml.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Relay     RelayConfig     `yaml:"relay"`
	Device    DeviceConfig    `yaml:"device"`
	Clipboard ClipboardConfig `yaml:"clipboard"`
	Sync      SyncConfig      `yaml:"sync"`
	History   HistoryConfig   `yaml:"history"`

	// baseDir is the directory holding the config file; all sibling data
	// files (identity, history, state) live next to it.
	baseDir string
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// RelayConfig points at the relay service brokering sync sessions.
type RelayConfig struct {
	BaseURL   string          `yaml:"base_url"`
	APIKey    string          `yaml:"api_key"` // keyring and env are consulted first
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig tunes the backoff between reconnect attempts. Setting
// max equal to base yields a fixed retry interval.
type ReconnectConfig struct {
	Base Duration `yaml:"base"`
	Max  Duration `yaml:"max"`
}

// DeviceConfig describes this device to peers.
type DeviceConfig struct {
	Name         string `yaml:"name"` // empty: use the OS hostname
	Discoverable bool   `yaml:"discoverable"`
}

// ClipboardConfig tunes local clipboard capture and apply.
type ClipboardConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	Debounce     Duration `yaml:"debounce"`
	ApplyRemote  bool     `yaml:"apply_remote"`
	MaxImageSide int      `yaml:"max_image_side"` // 0 disables downscale
}

// SyncConfig bounds outbound broadcast volume.
type SyncConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"` // 0 disables the limiter
	Burst         int `yaml:"burst"`
	OutboxSize    int `yaml:"outbox_size"` // pending events held while disconnected
}

// HistoryConfig selects and tunes the history store backend.
type HistoryConfig struct {
	Backend           string          `yaml:"backend"` // file | sqlite
	Path              string          `yaml:"path"`    // empty: derived from the config dir
	MaxEntries        int             `yaml:"max_entries"`
	TrimExemptsPinned bool            `yaml:"trim_exempts_pinned"`
	Retention         RetentionConfig `yaml:"retention"`
}

// RetentionConfig schedules age-based purging of old entries. An empty
// schedule disables the sweep.
type RetentionConfig struct {
	Schedule   string   `yaml:"schedule"` // cron expression
	MaxAge     Duration `yaml:"max_age"`
	KeepPinned bool     `yaml:"keep_pinned"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Relay: RelayConfig{
			BaseURL: DefaultRelayBaseURL,
			Reconnect: ReconnectConfig{
				Base: Duration(4 * time.Second),
				Max:  Duration(64 * time.Second),
			},
		},
		Device: DeviceConfig{Discoverable: true},
		Clipboard: ClipboardConfig{
			PollInterval: Duration(200 * time.Millisecond),
			Debounce:     Duration(250 * time.Millisecond),
			ApplyRemote:  true,
			MaxImageSide: 1600,
		},
		Sync: SyncConfig{
			RatePerMinute: 120,
			Burst:         10,
			OutboxSize:    64,
		},
		History: HistoryConfig{
			Backend:    "file",
			MaxEntries: 500,
			Retention: RetentionConfig{
				MaxAge:     Duration(30 * 24 * time.Hour),
				KeepPinned: true,
			},
		},
		baseDir: filepath.Dir(DefaultPath()),
	}
}

// DefaultPath returns ~/.clipbridge/config.yaml.
func DefaultPath() string {
	return ExpandHome("~/.clipbridge/config.yaml")
}

// Load reads the config at path, layering the file over the defaults.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	path = ExpandHome(path)
	cfg := Default()
	cfg.baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Relay.BaseURL == "" {
		return fmt.Errorf("relay.base_url must not be empty")
	}
	if c.Relay.Reconnect.Base.Std() <= 0 {
		return fmt.Errorf("relay.reconnect.base must be positive, got %s", c.Relay.Reconnect.Base.Std())
	}
	if c.Relay.Reconnect.Max.Std() < c.Relay.Reconnect.Base.Std() {
		return fmt.Errorf("relay.reconnect.max (%s) must be >= base (%s)",
			c.Relay.Reconnect.Max.Std(), c.Relay.Reconnect.Base.Std())
	}
	switch c.History.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("history.backend must be file or sqlite, got %q", c.History.Backend)
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}
	if c.Sync.RatePerMinute < 0 {
		return fmt.Errorf("sync.rate_per_minute must not be negative")
	}
	return nil
}

// Dir returns the directory data files live in (the config file's dir).
func (c *Config) Dir() string {
	if c.baseDir == "" {
		return filepath.Dir(DefaultPath())
	}
	return c.baseDir
}

// HistoryPath returns the history store location for the active backend.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return ExpandHome(c.History.Path)
	}
	if c.History.Backend == "sqlite" {
		return filepath.Join(c.Dir(), "history.db")
	}
	return filepath.Join(c.Dir(), "history.json")
}

// IdentityPath returns the persisted device identity location.
func (c *Config) IdentityPath() string {
	return filepath.Join(c.Dir(), "identity.json")
}

// PeersPath returns the remembered-peers store location.
func (c *Config) PeersPath() string {
	return filepath.Join(c.Dir(), "peers.json")
}

// StatePath returns the runtime connection state file location.
func (c *Config) StatePath() string {
	return filepath.Join(c.Dir(), "state.json")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Duration wraps time.Duration so YAML accepts values like "250ms" or
// "4s". Bare integers are read as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string or integer", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}
