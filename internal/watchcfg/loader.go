package watchcfg

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RawLoggingConfig is the file-shaped logging section; nil fields keep their
// defaults.
type RawLoggingConfig struct {
	Enabled   *bool   `yaml:"enabled"`
	Level     *string `yaml:"level"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

// RawConfig is the file-shaped configuration before defaults and group
// resolution are applied.
type RawConfig struct {
	Display      *string             `yaml:"display"`
	Output       *string             `yaml:"output"`
	PreloadAtoms []string            `yaml:"preload_atoms"`
	EventGroups  map[string][]string `yaml:"event_groups"`
	Logging      *RawLoggingConfig   `yaml:"logging"`
}

// DefaultConfigPath is where Load looks for the configuration file.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "xkit", "config.yaml"), nil
}

// DefaultLogPath is the event log location used when the file carries none.
func DefaultLogPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "xkit", "events.log"), nil
}

// Load reads the configuration from the standard location. A missing file is
// not an error: the defaults apply.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from path, which may not exist.
func LoadFromPath(path string) (*Config, error) {
	raw := RawConfig{}

	if exists, err := pathExists(path); err != nil {
		return nil, err
	} else if exists {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read: %w", path, err)
		}
		if err := decodeStrictYAML(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg, err := BuildEffectiveConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildEffectiveConfig layers raw over the defaults and resolves the event
// groups.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.Output != nil {
		cfg.Output = OutputFormat(*raw.Output)
	}
	if raw.PreloadAtoms != nil {
		cfg.PreloadAtoms = append([]string(nil), raw.PreloadAtoms...)
	}

	groups, err := resolveGroups(raw.EventGroups)
	if err != nil {
		return nil, err
	}
	cfg.EventGroups = groups

	if raw.Logging != nil {
		if raw.Logging.Enabled != nil {
			cfg.Logging.Enabled = *raw.Logging.Enabled
		}
		if raw.Logging.Level != nil {
			cfg.Logging.Level = *raw.Logging.Level
		}
		if raw.Logging.File != nil {
			cfg.Logging.File = *raw.Logging.File
		}
		if raw.Logging.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *raw.Logging.MaxSizeMB
		}
		if raw.Logging.MaxFiles != nil {
			cfg.Logging.MaxFiles = *raw.Logging.MaxFiles
		}
	}
	if cfg.Logging.Enabled && cfg.Logging.File == "" {
		path, err := DefaultLogPath()
		if err != nil {
			return nil, err
		}
		cfg.Logging.File = path
	}

	return cfg, nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
