package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/stablelab/growth-milestone-service/pkg/config"
)

// AuthConfig holds the shared secret callers must present.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// ForseConfig holds the connection settings for the Forse evaluation service.
type ForseConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig selects and parameterizes the milestone store backend.
// Backend is one of "file", "postgres", "memory".
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	FilePath string `yaml:"file_path"`
	// AllowCorruptReset opts into silently replacing an unparseable store
	// document with a fresh one instead of failing the request. Off by
	// default because it loses data.
	AllowCorruptReset bool `yaml:"allow_corrupt_reset"`
}

type Config struct {
	Server  config.ServerConfig `yaml:"server"`
	Auth    AuthConfig          `yaml:"auth"`
	Forse   ForseConfig         `yaml:"forse"`
	Storage StorageConfig       `yaml:"storage"`
	DB      config.DBConfig     `yaml:"db"`
	Redis   config.RedisConfig  `yaml:"redis"`
}

// Default returns a config with usable local-dev values.
func Default() *Config {
	return &Config{
		Server: config.ServerConfig{Port: ":8080"},
		Forse: ForseConfig{
			TimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Backend:  "file",
			FilePath: "data/milestones.json",
		},
	}
}

// Load reads the YAML config at path and applies environment overrides on
// top. A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	overrideFromEnv(cfg)

	if cfg.Forse.TimeoutSeconds <= 0 {
		cfg.Forse.TimeoutSeconds = 10
	}

	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("API_KEY"); key != "" {
		cfg.Auth.APIKey = key
	}
	if url := os.Getenv("FORSE_BASE_URL"); url != "" {
		cfg.Forse.BaseURL = url
	}
	if key := os.Getenv("FORSE_API_KEY"); key != "" {
		cfg.Forse.APIKey = key
	}
	if timeout := os.Getenv("FORSE_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			cfg.Forse.TimeoutSeconds = t
		}
	}
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("STORAGE_FILE_PATH"); path != "" {
		cfg.Storage.FilePath = path
	}
	if reset := os.Getenv("STORAGE_ALLOW_CORRUPT_RESET"); reset != "" {
		cfg.Storage.AllowCorruptReset = reset == "true" || reset == "1"
	}
}
