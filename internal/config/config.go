// Package config loads client configuration. Sources, highest priority first: the explicit
// path, CONFIG_PATH, ./identity-client.yaml, then environment variables alone. Environment
// variables always overlay the file. A ./.env file, if present, is loaded into the
// environment first without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	configPathEnvVar  = "CONFIG_PATH"
	defaultConfigFile = "identity-client.yaml"
	dotEnvFile        = ".env"
)

type Config interface {
	EnvConfig
	APIConfig
	StoreConfig
	MetricsConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogFormat() string
}

type mainConfig struct {
	EnvVars `yaml:"app"`
	API     `yaml:"api"`
	Store   `yaml:"store"`
	Metrics `yaml:"metrics"`
}

var _ Config = (*mainConfig)(nil)

// Validate checks the settings that have no usable default.
func (c *mainConfig) Validate() error {
	if err := c.API.validate(); err != nil {
		return err
	}
	return c.Store.validate()
}

// MustLoad panics if the configuration cannot be loaded.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("[config.Load] failed to read %s: %w", dotEnvFile, err)
	}

	if path == "" {
		path = os.Getenv(configPathEnvVar)
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	var cfg mainConfig
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("[config.Load] config file %q: %w", path, err)
		}
		// ReadConfig overlays the environment after the file.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("[config.Load] failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("[config.Load] failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("[config.Load] %w", err)
	}
	return &cfg, nil
}

// Usage describes every environment variable, for the CLI's help output.
func Usage() string {
	var cfg mainConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
