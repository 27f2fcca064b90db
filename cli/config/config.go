package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a msgfmt.yaml configuration file.
// All values are optional and act as defaults for msgfmt format flags.
// CLI flags always override config values.
type Config struct {
	RunID        string        `yaml:"run_id"`
	Output       string        `yaml:"output"`
	Report       string        `yaml:"report"`
	LogLevel     string        `yaml:"log_level"`
	FlushTimeout Duration      `yaml:"flush_timeout"`
	Engine       EngineConfig  `yaml:"engine"`
	Storage      StorageConfig `yaml:"storage"`
	Adapter      AdapterConfig `yaml:"adapter"`
}

// EngineConfig describes a test engine subprocess whose stdout is the
// frame stream.
type EngineConfig struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	BatchSize   int    `yaml:"batch_size"`

	// FlushInterval flushes partial batches on a timer; zero disables it.
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Mode    string            `yaml:"mode,omitempty"`
	MaxLen  int64             `yaml:"max_len,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values and cross-field constraints.
// Empty sections are valid; they simply contribute no defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.FlushTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("flush_timeout must be >= 0, got %s", c.FlushTimeout.Duration))
	}

	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend))
	}
	if c.Storage.Backend != "" && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.backend is set"))
	}
	if c.Storage.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("storage.batch_size must be >= 0, got %d", c.Storage.BatchSize))
	}
	if c.Storage.FlushInterval.Duration < 0 {
		errs = append(errs, fmt.Errorf("storage.flush_interval must be >= 0, got %s", c.Storage.FlushInterval.Duration))
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type))
	}
	switch c.Adapter.Mode {
	case "", "publish", "stream":
	default:
		errs = append(errs, fmt.Errorf("adapter.mode must be publish or stream, got %q", c.Adapter.Mode))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	return errors.Join(errs...)
}
