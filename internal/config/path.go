package config

import (
	"os"
	"path/filepath"
)

const dataDirName = "ldes"

// DefaultDataDir picks the store location used when no dataDir is configured:
// $XDG_DATA_HOME/ldes, then the platform's per-user application data
// directory when it exists, then ~/.ldes. Without a home directory it falls
// back to ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	candidates := []struct{ parent, leaf string }{
		{filepath.Join(home, "Library", "Application Support"), "LDES"},
		{filepath.Join(home, "AppData", "Local"), "LDES"},
	}
	for _, c := range candidates {
		if isDir(c.parent) {
			return filepath.Join(c.parent, c.leaf)
		}
	}
	return filepath.Join(home, "."+dataDirName)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
