// Package config loads the sealdropd server configuration from a yaml
// file, applying defaults for anything left unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the sealdropd server configuration.
type Config struct {
	DataDir       string `yaml:"dataDir"`
	APIPort       uint16 `yaml:"apiPort"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	Origin        string `yaml:"origin"`
	LogLevel      string `yaml:"logLevel"`
	DefaultTTL    uint   `yaml:"defaultTtlHours"`
}

// Load reads the config file at path. A missing file yields the
// defaults; a malformed one is an error.
func Load(path string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if config.DataDir == "" {
		config.DataDir = "./sealdrop-data"
	}
	if config.APIPort == 0 {
		config.APIPort = 4280
	}
	if config.Origin == "" {
		config.Origin = fmt.Sprintf("http://localhost:%d", config.APIPort)
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}
