// Package watchcfg loads the configuration for the xkit command line tools:
// which display to dial, which event groups the watch verb can subscribe to,
// which atoms to intern up front, and how the event log file behaves.
package watchcfg

import (
	"fmt"
	"strings"
)

// OutputFormat selects how the watch verb renders events on stdout.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// LoggingConfig configures the rotating event log file.
type LoggingConfig struct {
	// Enabled turns file logging on/off
	Enabled bool `yaml:"enabled,omitempty"`
	// Level controls logging verbosity: debug, info, warn, error
	Level string `yaml:"level,omitempty"`
	// File is the log file path (default: ~/.local/share/xkit/events.log)
	File string `yaml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`
	// MaxFiles is the number of rotated files to keep (default: 3)
	MaxFiles int `yaml:"max_files,omitempty"`
}

// Config is the effective, validated configuration.
type Config struct {
	// Display overrides the DISPLAY environment variable when non-empty.
	Display string `yaml:"display,omitempty"`
	// Output is the watch verb's stdout format.
	Output OutputFormat `yaml:"output,omitempty"`
	// PreloadAtoms are interned right after dialing, warming the cache.
	PreloadAtoms []string `yaml:"preload_atoms,omitempty"`
	// EventGroups maps group names to resolved event codes. A nil code
	// list selects every event. Builtin groups are always present; user
	// groups with the same name replace them.
	EventGroups map[string][]byte `yaml:"-"`
	// Logging configures the event log file.
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ValidationError reports an invalid configuration value along with the YAML
// path that carries it.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputText,
		Logging: LoggingConfig{
			Enabled:   false,
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Validate checks the effective configuration for values no verb can work
// with.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return &ValidationError{Path: "output", Err: fmt.Errorf("output must be one of: text, json")}
	}
	for _, name := range c.PreloadAtoms {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Path: "preload_atoms", Err: fmt.Errorf("preload_atoms contains an empty name")}
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("level must be one of: debug, info, warn, error")}
	}
	if c.Logging.MaxSizeMB < 1 {
		return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 1")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	if c.Logging.Enabled && strings.TrimSpace(c.Logging.File) == "" {
		return &ValidationError{Path: "logging.file", Err: fmt.Errorf("file is required when logging is enabled")}
	}
	return nil
}
