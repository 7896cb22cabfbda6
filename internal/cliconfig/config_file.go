package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Identifier      string `toml:"identifier"`
	DataDir         string `toml:"data_dir"`
	ListenAddr      string `toml:"listen_addr"`
	Token           string `toml:"token"`
	ReadTimeout     string `toml:"read_timeout"`
	MaxMessageBytes int    `toml:"max_message_bytes"`
	LogLevel        string `toml:"log_level"`
	LogJSON         *bool  `toml:"log_json"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path,
// <user config dir>/gerbtrace/shell.toml, or "" if there is no config dir.
func DefaultConfigPath() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "gerbtrace", "shell.toml")
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".gerbtrace", "shell.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("identifier", fc.Identifier, &cfg.Identifier)
	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("token", fc.Token, &cfg.Token)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}

	s.setInt("max-message-bytes", fc.MaxMessageBytes, &cfg.MaxMessageBytes)
	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
