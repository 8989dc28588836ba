package maskbatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/session"
)

// Config is the application configuration, loaded from a YAML file.
type Config struct {
	// Database is the path of the SQLite database file.
	Database string `yaml:"database"`
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen"`
	// LogLevel is a zerolog level name (debug, info, warn, ...).
	LogLevel string `yaml:"log_level"`
	// AutosaveDebounce is how long metadata edits wait for further
	// keystrokes before persisting.
	AutosaveDebounce time.Duration `yaml:"autosave_debounce"`
	// Export sets the default status filters used when an export request
	// does not name its own.
	Export ExportConfig `yaml:"export"`
}

// ExportConfig holds the default export filters. Empty lists select
// everything.
type ExportConfig struct {
	ImageStatuses []string `yaml:"image_statuses"`
	LayerStatuses []string `yaml:"layer_statuses"`
}

// LoadConfig reads and validates a config file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("while reading config %s: %w", filename, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("while parsing config %s: %w", filename, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("while validating config %s: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "maskbatch.db"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AutosaveDebounce <= 0 {
		c.AutosaveDebounce = session.DefaultDebounce
	}
}

func (c *Config) validate() error {
	for _, raw := range c.Export.ImageStatuses {
		if !domain.ImageStatus(raw).Valid() {
			return fmt.Errorf("unknown image status %q in export defaults", raw)
		}
	}
	for _, raw := range c.Export.LayerStatuses {
		switch domain.LayerStatus(raw) {
		case domain.LayerPrediction, domain.LayerEdited, domain.LayerApproved, domain.LayerRejected:
		default:
			return fmt.Errorf("unknown layer status %q in export defaults", raw)
		}
	}
	return nil
}

// ExportImageStatuses converts the configured default image filter.
func (c *Config) ExportImageStatuses() []domain.ImageStatus {
	out := make([]domain.ImageStatus, 0, len(c.Export.ImageStatuses))
	for _, raw := range c.Export.ImageStatuses {
		out = append(out, domain.ImageStatus(raw))
	}
	return out
}

// ExportLayerStatuses converts the configured default layer filter.
func (c *Config) ExportLayerStatuses() []domain.LayerStatus {
	out := make([]domain.LayerStatus, 0, len(c.Export.LayerStatuses))
	for _, raw := range c.Export.LayerStatuses {
		out = append(out, domain.LayerStatus(raw))
	}
	return out
}
