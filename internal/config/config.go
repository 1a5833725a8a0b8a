// Package config loads the hub's application configuration. The file lives
// in the user config directory and missing files yield defaults, so a fresh
// install boots without any setup.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the daemon configuration.
type Config struct {
	// ListenAddr is the address of the remote control surface.
	ListenAddr string `json:"listen_addr"`
	// SynthPort is the MIDI output port name of the synth backend. Matched
	// as a substring by the MIDI library, so "FluidSynth" finds the ALSA
	// port regardless of its client number.
	SynthPort string `json:"synth_port"`
	// DatabasePath is the sqlite preset database location.
	DatabasePath string `json:"database_path"`
	// RulesPath is the YAML classification rule table; compiled-in defaults
	// apply when the file does not exist.
	RulesPath string `json:"rules_path"`
	// ActivitySize bounds the in-memory activity feed.
	ActivitySize int `json:"activity_size"`
	// ScanIntervalMS is the hot-plug port scan period.
	ScanIntervalMS int `json:"scan_interval_ms"`
	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level"`
}

// configDir returns the platform-appropriate config directory.
func configDir() (string, error) {
	configHome, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configHome, "guitar-midi-hub"), nil
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Default returns the configuration a fresh install runs with.
func Default() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		ListenAddr:     ":8080",
		SynthPort:      "FluidSynth",
		DatabasePath:   filepath.Join(dir, "presets.db"),
		RulesPath:      filepath.Join(dir, "rules.yaml"),
		ActivitySize:   100,
		ScanIntervalMS: 2000,
		LogLevel:       "info",
	}, nil
}

// Load reads the config from disk, returning defaults if not found.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	defaults, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := *defaults
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.ActivitySize <= 0 {
		cfg.ActivitySize = defaults.ActivitySize
	}
	if cfg.ScanIntervalMS <= 0 {
		cfg.ScanIntervalMS = defaults.ScanIntervalMS
	}
	return &cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
