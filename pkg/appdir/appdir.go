// Package appdir resolves the per-user, per-application data directory the
// desktop shell keeps its private files in.
//
// The layout matches what the webview shell uses for its own app data, so a
// record written by this package is found by the front-end's host and vice
// versa:
//
//	darwin:  $HOME/Library/Application Support/<identifier>
//	windows: %APPDATA%\<identifier>
//	others:  $XDG_DATA_HOME/<identifier> or $HOME/.local/share/<identifier>
package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ErrUnresolvable is returned when no per-user storage location exists.
var ErrUnresolvable = errors.New("appdir: data directory cannot be resolved")

// env is swapped in tests.
var (
	getenv  = os.Getenv
	homeDir = os.UserHomeDir
	goos    = runtime.GOOS
)

// DataDir returns the data directory for the application identifier.
// The directory is not created.
func DataDir(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: empty application identifier", ErrUnresolvable)
	}
	base, err := dataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, identifier), nil
}

// Resolver returns a lazy DataDir lookup. A non-empty override is returned
// as-is, which lets config pin the directory.
func Resolver(identifier, override string) func() (string, error) {
	return func() (string, error) {
		if override != "" {
			return override, nil
		}
		return DataDir(identifier)
	}
}

func dataHome() (string, error) {
	switch goos {
	case "windows":
		dir := getenv("APPDATA")
		if dir == "" {
			return "", fmt.Errorf("%w: %%APPDATA%% is not defined", ErrUnresolvable)
		}
		return dir, nil
	case "darwin", "ios":
		home, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	case "plan9":
		home, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "lib"), nil
	default:
		if dir := getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
			return dir, nil
		}
		home, err := home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

func home() (string, error) {
	h, err := homeDir()
	if err != nil || h == "" {
		return "", fmt.Errorf("%w: no home directory: %v", ErrUnresolvable, err)
	}
	return h, nil
}
