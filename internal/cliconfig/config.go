package cliconfig

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultIdentifier is the bundle identifier the data directory is named after.
const DefaultIdentifier = "com.newmatik.gerbtrace"

// DefaultListenAddr binds the bridge to an ephemeral loopback port.
const DefaultListenAddr = "127.0.0.1:0"

// MinReadTimeout is the shortest accepted bridge read timeout.
const MinReadTimeout = time.Second

// Config holds CLI configuration for gerbtrace-shell.
type Config struct {
	Identifier string
	DataDir    string

	ListenAddr      string
	Token           string
	ReadTimeout     time.Duration
	MaxMessageBytes int

	LogLevel string
	LogJSON  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Identifier:      DefaultIdentifier,
		ListenAddr:      DefaultListenAddr,
		ReadTimeout:     30 * time.Second,
		MaxMessageBytes: 1 << 20, // 1MB
		LogLevel:        "info",
	}
}

// Validate checks the configuration for errors and normalizes values.
func (c *Config) Validate() error {
	c.Identifier = strings.TrimSpace(c.Identifier)
	if c.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if strings.ContainsAny(c.Identifier, `/\`) || c.Identifier == "." || c.Identifier == ".." {
		return fmt.Errorf("identifier %q must be a single path element", c.Identifier)
	}

	if c.DataDir != "" {
		abs, err := filepath.Abs(c.DataDir)
		if err != nil {
			return fmt.Errorf("data-dir: %w", err)
		}
		c.DataDir = abs
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if err := checkLoopback(c.ListenAddr); err != nil {
		return err
	}

	if c.ReadTimeout < MinReadTimeout {
		return fmt.Errorf("read timeout must be at least %s, got %s", MinReadTimeout, c.ReadTimeout)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive")
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// checkLoopback rejects listen addresses reachable from other hosts; the
// bridge hands out the contents of the app data directory.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("listen address %q is not a loopback address", addr)
}

// ParseLevel maps a config log level to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
