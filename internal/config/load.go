package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	envConfigPath   = "CONFIG_PATH"
	localConfigFile = "local.yaml"
)

// New loads the configuration from env vars only.
func New() (Config, error) {
	return Load("")
}

// MustLoad panics when the configuration cannot be loaded.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration with priority: explicit path, CONFIG_PATH, ./local.yaml, env only.
// Env vars always overlay file values.
func Load(path string) (Config, error) {
	cfg := &mainConfig{}

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		if _, err := os.Stat(localConfigFile); err == nil {
			path = localConfigFile
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return cfg, nil
}
