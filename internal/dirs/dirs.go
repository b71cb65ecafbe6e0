// Package dirs resolves the per-user directories usmconv keeps its
// configuration, run history and logs in.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "usmconv"

// ConfigDir holds config.{yaml,toml,json}. It follows os.UserConfigDir:
// $XDG_CONFIG_HOME or ~/.config on Linux, Application Support on macOS and
// %AppData% on Windows.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// StateDir holds the run history database and the TUI log file:
// $XDG_STATE_HOME/usmconv (or ~/.local/state/usmconv) on Linux,
// %LocalAppData%/usmconv/state on Windows and <ConfigDir>/state elsewhere.
func StateDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if v := os.Getenv("XDG_STATE_HOME"); v != "" {
			return filepath.Join(v, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "state", appName), nil
	case "windows":
		if la := os.Getenv("LOCALAPPDATA"); la != "" {
			return filepath.Join(la, appName, "state"), nil
		}
	}
	cfg, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "state"), nil
}

func inState(name string) (string, error) {
	d, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

// HistoryPath is the default run history database.
func HistoryPath() (string, error) { return inState("history.db") }

// LogPath is where logs go while the TUI owns the terminal.
func LogPath() (string, error) { return inState(appName + ".log") }

// Ensure creates path and its parents.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll creates the config and state directories. A directory whose
// location cannot be resolved is skipped.
func EnsureAll() error {
	for _, resolve := range []func() (string, error){ConfigDir, StateDir} {
		p, err := resolve()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
