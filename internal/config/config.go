// Package config loads the application configuration from a YAML file and
// applies defaults for anything left unspecified.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mealplanner/pantry/internal/search"
	"github.com/mealplanner/pantry/internal/storage"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("30s", "2m") or a plain
// integer number of nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Log configures the logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

// Storage configures backend selection.
type Storage struct {
	// Backend pins a backend (bridge, sqlite, memory). Empty probes in
	// preference order.
	Backend string `yaml:"backend"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
	// BridgeTimeout bounds each bridge call.
	BridgeTimeout Duration `yaml:"bridge_timeout"`
}

// Validation configures the recipe validator.
type Validation struct {
	// WarnTotalTimeMinutes is the total_time threshold above which a
	// long-duration warning is attached. Zero keeps the default of one day.
	WarnTotalTimeMinutes int `yaml:"warn_total_time_minutes"`
}

// Config is the root document.
type Config struct {
	Log        Log            `yaml:"log"`
	Storage    Storage        `yaml:"storage"`
	Validation Validation     `yaml:"validation"`
	Search     search.Weights `yaml:"search"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Storage: Storage{
			SQLitePath: "pantry.db",
		},
		Search: search.DefaultWeights(),
	}
}

// Load reads path and overlays it onto the defaults. A missing file is not
// an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the system would misinterpret.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	switch c.Storage.Backend {
	case "", storage.BackendBridge, storage.BackendSQLite, storage.BackendMemory:
	default:
		return fmt.Errorf("invalid storage backend %q", c.Storage.Backend)
	}
	if c.Storage.BridgeTimeout < 0 {
		return fmt.Errorf("bridge timeout must not be negative")
	}
	if c.Validation.WarnTotalTimeMinutes < 0 {
		return fmt.Errorf("warn threshold must not be negative")
	}
	if c.Search.Title < 0 || c.Search.Description < 0 || c.Search.Ingredient < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	return nil
}
