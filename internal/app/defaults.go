package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fim-go/internal/config"
)

// Defaults holds the locations used when nothing else is configured.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment
// variables first:
//   - FIM_CONFIG_PATH: config file location (default: ~/.config/fim.toml)
//   - FIM_HOME: base directory for fim data (default: ~/.local/share/fim)
func GetDefaults() (Defaults, error) {
	configPath := os.Getenv("FIM_CONFIG_PATH")
	baseDir := os.Getenv("FIM_HOME")

	if configPath == "" || baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Defaults{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(homeDir, ".config", "fim.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(homeDir, ".local", "share", "fim")
		}
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadConfig reads the config file at d.ConfigPath. A missing file is not
// an error: a default config keyed by the hostname is returned instead.
func LoadConfig(d Defaults) (*config.Config, error) {
	cfg, err := config.ReadFromFile(d.ConfigPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	hostID, herr := os.Hostname()
	if herr != nil || hostID == "" {
		hostID = "localhost"
	}
	return config.NewConfig(hostID, d.BaseDir), nil
}
