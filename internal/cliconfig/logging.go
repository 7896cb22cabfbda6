package cliconfig

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

// Logger builds the process logger. Console output is the default; LogJSON
// switches to one JSON object per line. The level is process-wide, see
// ApplyLogLevel.
func Logger(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.LogJSON {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return log.NewConsoleLogger(w)
}

// ApplyLogLevel sets the global zerolog level. It can be called again at
// runtime when the config file changes.
func ApplyLogLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// ReloadLogLevel re-reads the log level from the config file at path and
// applies it. A level pinned by flag or GERBTRACE_LOG_LEVEL wins over the
// file, in which case nothing changes and applied is "".
func ReloadLogLevel(path string, changed map[string]bool) (applied string, err error) {
	if changed["log-level"] || os.Getenv("GERBTRACE_LOG_LEVEL") != "" {
		return "", nil
	}
	fc, err := LoadFileConfig(path)
	if err != nil {
		return "", err
	}
	level := fc.LogLevel
	if level == "" {
		level = DefaultConfig().LogLevel
	}
	if err := ApplyLogLevel(level); err != nil {
		return "", err
	}
	return level, nil
}
