// Package config loads server configuration from an optional YAML file.
// Command-line flags override whatever the file provides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the process configuration.
type Config struct {
	// VaultDir is the storage root holding the entity markdown files.
	VaultDir string `yaml:"vault_dir"`
	// Transport selects "stdio" or "http".
	Transport string `yaml:"transport"`
	// Port is the HTTP listen port, used only with the http transport.
	Port string `yaml:"port"`
	// Watch enables logging of external edits to vault files.
	Watch bool `yaml:"watch"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		VaultDir:  "./kg_markdown_data",
		Transport: "stdio",
		Port:      "8081",
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
