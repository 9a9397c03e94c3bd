package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// rootMarkers identify a workspace root, checked in order while
// walking up from the starting directory.
var rootMarkers = []string{".git", "go.mod", "package.json", "tandem.json"}

// FindRoot walks up from dir looking for a workspace marker. Without a
// hit it returns dir unchanged.
func FindRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for current := abs; ; {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs
		}
		current = parent
	}
}

// Paths holds the XDG-style directories tandem uses.
type Paths struct {
	Data   string
	Config string
	Cache  string
	State  string
}

// GetPaths resolves the standard directories, honoring the XDG
// environment overrides.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(envOr("XDG_DATA_HOME", defaultDataHome()), "tandem"),
		Config: filepath.Join(envOr("XDG_CONFIG_HOME", defaultConfigHome()), "tandem"),
		Cache:  filepath.Join(envOr("XDG_CACHE_HOME", defaultCacheHome()), "tandem"),
		State:  filepath.Join(envOr("XDG_STATE_HOME", defaultStateHome()), "tandem"),
	}
}

// Dir returns the config directory, honoring TANDEM_CONFIG_DIR.
func Dir() string {
	if dir := os.Getenv("TANDEM_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetPaths().Config
}

// EnsurePaths creates every standard directory.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath is where the JSON store lives.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// LogPath is where per-run log files land.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "log")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
