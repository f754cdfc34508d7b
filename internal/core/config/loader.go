package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for i := range cfg.Boundaries {
		if cfg.Boundaries[i].Name == "" {
			return nil, fmt.Errorf("boundary %d: name is required", i)
		}
		p := &cfg.Boundaries[i].Policy
		if p.Type == "" {
			p.Type = "none"
		}
		if p.Type == "retry" {
			if p.MaxAttempts <= 0 {
				p.MaxAttempts = 3
			}
			if p.BaseDelay <= 0 {
				p.BaseDelay = 1 * time.Second
			}
		}
	}

	return &cfg, nil
}
