package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	// ConfigPath is an .hcl file or a directory of .hcl files.
	ConfigPath string

	LogFormat string
	LogLevel  string

	// Watch keeps the app alive, re-running configured requests when
	// tracked inputs change.
	Watch bool

	// Overrides for the corresponding engine block settings. Zero values
	// defer to configuration.
	Workers       int
	StorePath     string
	InMemoryStore bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
