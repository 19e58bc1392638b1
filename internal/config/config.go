package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "orrery.json"

	// DefaultListen is the default server listen address.
	DefaultListen = "localhost:8080"

	// DefaultDatabase is the default SQLite database path.
	DefaultDatabase = "orrery.db"

	// DefaultWriteRate is the default write rate limit in requests per
	// second. Zero disables limiting.
	DefaultWriteRate = 10

	// DefaultWriteBurst is the default write limiter burst size.
	DefaultWriteBurst = 5
)

// AstroConfig configures the external astrology computation API.
type AstroConfig struct {
	// BaseURL is the API endpoint, e.g. "https://astro.example.com".
	// Empty disables chart exports.
	BaseURL string `json:"baseUrl,omitempty"`

	// APIKey authenticates requests to the API. May also be supplied
	// via the ORRERY_ASTRO_API_KEY environment variable, which takes
	// precedence so keys stay out of config files.
	APIKey string `json:"apiKey,omitempty"`
}

// ExportsConfig configures S3 storage for exported chart documents.
type ExportsConfig struct {
	// Bucket is the S3 bucket name. Empty disables chart exports.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty"`
}

// Config represents the complete orrery.json configuration.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `json:"listen,omitempty"`

	// Database is the SQLite database path.
	Database string `json:"database,omitempty"`

	// Astro configures the astrology computation API.
	Astro AstroConfig `json:"astro,omitempty"`

	// Exports configures S3 export storage.
	Exports ExportsConfig `json:"exports,omitempty"`

	// WriteRate caps mutating requests per second. Zero disables
	// limiting; negative is invalid.
	WriteRate float64 `json:"writeRate"`

	// WriteBurst is the write limiter burst size.
	WriteBurst int `json:"writeBurst,omitempty"`

	// Metrics mounts /metrics and instruments requests.
	Metrics bool `json:"metrics,omitempty"`

	// Tracing adds an OpenTelemetry span per request.
	Tracing bool `json:"tracing,omitempty"`

	// configPath stores the path the config was loaded from.
	configPath string
}

// New creates a Config with defaults applied.
func New() *Config {
	cfg := &Config{WriteRate: DefaultWriteRate}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration from dir/orrery.json. A missing file is
// not an error; defaults are returned.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// cfg starts from New's defaults, so an absent writeRate keeps the
	// default while an explicit value, zero or negative included, lands
	// as written and is judged by Validate.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config: no path to save to")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from, or "" for defaults.
func (c *Config) Path() string {
	return c.configPath
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.WriteBurst == 0 {
		c.WriteBurst = DefaultWriteBurst
	}
	if key := os.Getenv("ORRERY_ASTRO_API_KEY"); key != "" {
		c.Astro.APIKey = key
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.WriteRate < 0 {
		return fmt.Errorf("config: writeRate must not be negative")
	}
	if c.WriteBurst < 0 {
		return fmt.Errorf("config: writeBurst must not be negative")
	}
	if c.Astro.BaseURL != "" && !strings.HasPrefix(c.Astro.BaseURL, "http://") && !strings.HasPrefix(c.Astro.BaseURL, "https://") {
		return fmt.Errorf("config: astro.baseUrl must be an http(s) URL, got %q", c.Astro.BaseURL)
	}
	return nil
}

// ExportsEnabled reports whether chart exports are fully configured.
func (c *Config) ExportsEnabled() bool {
	return c.Astro.BaseURL != "" && c.Exports.Bucket != ""
}

// Exists reports whether dir contains an orrery.json.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
