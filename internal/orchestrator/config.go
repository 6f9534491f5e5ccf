package orchestrator

import (
	"errors"
	"fmt"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/retry"
)

type Mode string

const (
	Sequential Mode = "sequential"
	Concurrent Mode = "concurrent"
)

type Config struct {
	Mode          Mode   `mapstructure:"mode" json:"mode"`
	MaxConcurrent int    `mapstructure:"max_concurrent" json:"max_concurrent"`
	ContextWindow int    `mapstructure:"context_window" json:"context_window"`
	TargetLang    string `mapstructure:"target_language" json:"target_language"`
	// CheckLanguage rejects completions detected in another language.
	CheckLanguage bool           `mapstructure:"check_language" json:"check_language"`
	Retry         retry.Policy   `mapstructure:",squash" json:"retry"`
	Chunking      chunker.Config `mapstructure:",squash" json:"chunking"`
}

func DefaultConfig() Config {
	return Config{
		Mode:          Sequential,
		MaxConcurrent: 3,
		ContextWindow: 2,
		Retry:         retry.DefaultPolicy(),
		Chunking:      chunker.DefaultConfig(),
	}
}

// Validate reports the first invalid setting as *internal.ConfigError.
func (c Config) Validate() error {
	switch c.Mode {
	case "", Sequential, Concurrent:
	default:
		return &internal.ConfigError{Field: "mode", Err: fmt.Errorf("unknown mode %q", c.Mode)}
	}
	if c.Mode == Concurrent && c.MaxConcurrent < 1 {
		return &internal.ConfigError{Field: "max_concurrent", Err: fmt.Errorf("must be at least 1, got %d", c.MaxConcurrent)}
	}
	if c.ContextWindow < 0 {
		return &internal.ConfigError{Field: "context_window", Err: errors.New("must not be negative")}
	}
	if err := c.Retry.Validate(); err != nil {
		return &internal.ConfigError{Field: "retry", Err: err}
	}
	if err := c.Chunking.Validate(); err != nil {
		return &internal.ConfigError{Field: "chunking", Err: err}
	}
	return nil
}
