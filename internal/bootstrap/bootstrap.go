// Package bootstrap provides application initialization for msgproxy CLI commands.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
)

// Result contains the result of bootstrapping the application.
type Result struct {
	Config         *config.Config
	ConfigFilePath string
}

// Bootstrap loads .env, the config file (or defaults), and MSGPROXY_* overrides.
// An empty configPath looks for config.yaml in the working directory, then the XDG config dir.
func Bootstrap(configPath string) (*Result, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	defaultConfigPath := filepath.Join(xdgConfigDir(), "config.yaml")

	var cfg *config.Config
	switch {
	case configPath != "":
		configPath = expandHome(configPath)
		if configPath == defaultConfigPath {
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				autoInitConfig(configPath)
			}
		}
		cfg, err = config.LoadConfigOptional(configPath, false)
	default:
		configPath = filepath.Join(wd, "config.yaml")
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			configPath = defaultConfigPath
		}
		cfg, err = config.LoadConfigOptional(configPath, true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ApplyEnvOverrides(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config after env overrides: %w", err)
	}

	return &Result{
		Config:         cfg,
		ConfigFilePath: configPath,
	}, nil
}

func xdgConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "msgproxy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "msgproxy")
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// autoInitConfig silently creates config on first run
func autoInitConfig(configPath string) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return
	}
	if err := os.WriteFile(configPath, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		return
	}
	fmt.Printf("First run: created config at %s\n", configPath)
}
