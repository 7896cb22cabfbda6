package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (GERBTRACE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("identifier", os.Getenv("GERBTRACE_IDENTIFIER"), &cfg.Identifier)
	s.setString("data-dir", os.Getenv("GERBTRACE_DATA_DIR"), &cfg.DataDir)
	s.setString("listen", os.Getenv("GERBTRACE_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("token", os.Getenv("GERBTRACE_TOKEN"), &cfg.Token)
	s.setString("log-level", os.Getenv("GERBTRACE_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("read-timeout", os.Getenv("GERBTRACE_READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setIntFromString("max-message-bytes", os.Getenv("GERBTRACE_MAX_MESSAGE_BYTES"), &cfg.MaxMessageBytes); err != nil {
		return err
	}

	s.setBoolFromString("log-json", os.Getenv("GERBTRACE_LOG_JSON"), &cfg.LogJSON)

	return nil
}
