// Package config loads and persists the ambient settings a download task
// falls back to when a flag or API field is left unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file's name inside ConfigDir.
	FileName = "config.yml"
	// AppDirName names the per-app subdirectory under the platform config root.
	AppDirName = "hlsdl"

	// DefaultConcurrency is the scheduler width used when Concurrency is unset.
	DefaultConcurrency = 8
	// DefaultMaxRetries bounds per-segment retry attempts when unset.
	DefaultMaxRetries = 5
)

// Config holds the settings read from config.yml.
type Config struct {
	// OutputDir is where finished remux output is written by default.
	OutputDir string `yaml:"output_dir,omitempty"`

	// Concurrency is the default scheduler width for new tasks.
	Concurrency int `yaml:"concurrency,omitempty"`

	// MaxRetries bounds per-segment retry attempts before a task is cancelled.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// HeaderBundles are named sets of request headers (e.g. "Referer",
	// "User-Agent", cookies) a download can select by name via --header-set.
	HeaderBundles map[string]map[string]string `yaml:"header_bundles,omitempty"`
}

// ConfigDir returns the platform config directory for hlsdl.
// Windows: %APPDATA%\hlsdl\
// macOS/Linux: ~/.config/hlsdl/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the full path to config.yml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// DefaultOutputDir returns the default remux output directory.
func DefaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./downloads"
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return filepath.Join(home, "Downloads", "hlsdl")
	default:
		return filepath.Join(home, "downloads", "hlsdl")
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir(),
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
	}
}

// LoadOrDefault reads config.yml if it exists, falling back to
// DefaultConfig when it is absent. A present-but-unparseable file is an
// error: unlike a missing file, it signals the user wrote something broken.
func LoadOrDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// HeaderBundle returns the named header set, or nil if it doesn't exist.
func (c *Config) HeaderBundle(name string) map[string]string {
	if c.HeaderBundles == nil {
		return nil
	}
	return c.HeaderBundles[name]
}

// Save serializes cfg to config.yml, creating ConfigDir if necessary.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
