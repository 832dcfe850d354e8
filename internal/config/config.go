package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"taskdeck/internal/timeline"
)

// Config models taskdeck.yml.
type Config struct {
	Owner string `yaml:"owner"`
	Store struct {
		// Path is a local SQLite row store. Empty means <workspace>/.taskdeck/taskdeck.db.
		Path string `yaml:"path"`
		// URL selects a hosted store reached over HTTP instead of Path.
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"store"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Timeline timeline.Config `yaml:"timeline"`
	Server   ServerConfig    `yaml:"server"`
	// DueSoonDays bounds the due-soon view.
	DueSoonDays int `yaml:"due_soon_days"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	BasePath         string `yaml:"base_path"`
	JWTSecret        string `yaml:"jwt_secret"`
	AllowOwnerHeader bool   `yaml:"allow_owner_header"`
}

// Remote reports whether the store is reached over HTTP.
func (c *Config) Remote() bool {
	return c.Store.URL != ""
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with taskdeck init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(""), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config.owner is required")
	}
	if c.Store.URL != "" {
		if c.Store.Path != "" {
			return fmt.Errorf("config.store: set either path or url, not both")
		}
		u, err := url.Parse(c.Store.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.store.url must be an http(s) URL")
		}
	}
	if c.Timeline.PixelsPerDay <= 0 {
		return fmt.Errorf("config.timeline.pixels_per_day must be positive")
	}
	if c.Timeline.LookbackDays < 0 {
		return fmt.Errorf("config.timeline.lookback_days must not be negative")
	}
	if c.Timeline.RangeMonths <= 0 {
		return fmt.Errorf("config.timeline.range_months must be positive")
	}
	if c.DueSoonDays <= 0 {
		return fmt.Errorf("config.due_soon_days must be positive")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdeck.yml")
}

// CachePath resolves the cache file, defaulting under the workspace state dir.
func (c *Config) CachePath(workspace string) string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".taskdeck", "cache.db")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(owner string) string {
	return fmt.Sprintf(defaultTemplate, owner)
}

// Default returns the default Config for an owner. The owner may be empty and
// filled in later by flags.
func Default(owner string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, owner))).Decode(&cfg)
	cfg.Owner = owner
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted values
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
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

const defaultTemplate = `owner: "%s"

store:
  path: ""

cache:
  path: ""

timeline:
  pixels_per_day: 30
  lookback_days: 7
  range_months: 3

server:
  addr: "127.0.0.1:8787"
  base_path: "/v0"
  allow_owner_header: false

due_soon_days: 7
`
