package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single read-only ICS feed drawn on the grid
// (public holidays, a shared team calendar, ...).
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to decide "today" and to place
	// feed events on days (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DefaultView is the view shown when the page is opened without ?view=.
	// "month" (default) or "week".
	DefaultView string `yaml:"default_view" json:"default_view"`

	// InitialDate pins the reference date used when the page is opened
	// without ?date= (YYYY-MM-DD or YYYY-MM). Empty means today.
	InitialDate string `yaml:"initial_date" json:"initial_date"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// AllowReset enables DELETE /api/events, which wipes every stored event.
	AllowReset bool `yaml:"allow_reset" json:"allow_reset"`

	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Highlight is a list of keywords that cause events to be rendered in red.
	Highlight []string `yaml:"highlight" json:"highlight"`

	// Feeds is the list of subscribed ICS feeds.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		WeekStart:   "sunday",
		DefaultView: "month",
		DBPath:      "./data/clickcal.db",
		LogLevel:    "info",
		Metrics:     true,
		RefreshCron: "*/30 * * * *",
		Highlight:   []string{"휴일", "휴가", "중요"},
		Feeds:       []FeedConfig{},
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = "sunday"
	}
	switch c.DefaultView {
	case "month", "week":
	default:
		c.DefaultView = "month"
	}
	if c.DBPath == "" {
		c.DBPath = "./data/clickcal.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.Highlight == nil {
		c.Highlight = []string{"휴일", "휴가", "중요"}
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// LoadEnv reads KEY=VALUE pairs from the given dotenv files into the process
// environment. Missing files are ignored; existing variables win.
func LoadEnv(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides fields from CLICKCAL_* environment variables:
//
//	CLICKCAL_LISTEN, CLICKCAL_TIMEZONE, CLICKCAL_DB_PATH, CLICKCAL_LOG_LEVEL,
//	CLICKCAL_INITIAL_DATE, CLICKCAL_ALLOW_RESET, CLICKCAL_METRICS
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	setString("CLICKCAL_LISTEN", &c.Listen)
	setString("CLICKCAL_TIMEZONE", &c.Timezone)
	setString("CLICKCAL_DB_PATH", &c.DBPath)
	setString("CLICKCAL_LOG_LEVEL", &c.LogLevel)
	setString("CLICKCAL_INITIAL_DATE", &c.InitialDate)
	setBool("CLICKCAL_ALLOW_RESET", &c.AllowReset)
	setBool("CLICKCAL_METRICS", &c.Metrics)
	c.Normalize()
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".clickcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
