// Package logging provides helpers for a daily log file (Open, New), startup
// removal of old log files (CleanOld), and the bracketed component tag used
// in log lines (Tag). The hlsdl commands call CleanOld at startup but do not
// open the daily file; their log lines go to the standard library's default
// logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// MaxLogAgeDays bounds how long a daily log file is kept before CleanOld
// removes it.
const MaxLogAgeDays = 30

// LogDir returns the platform log directory for hlsdl.
// Linux: $XDG_DATA_HOME/hlsdl/logs or ~/.local/share/hlsdl/logs
// macOS: ~/Library/Logs/hlsdl
// Windows: %LOCALAPPDATA%\hlsdl\logs
func LogDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "hlsdl", "logs"), nil
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("logging: resolving home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Logs", "hlsdl"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "hlsdl", "logs"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("logging: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "hlsdl", "logs"), nil
}

// todayFileName returns the current day's log filename, e.g. "2026-08-01.log".
func todayFileName() string {
	return time.Now().Format("2006-01-02") + ".log"
}

// Open creates (or appends to) today's log file under LogDir and returns a
// writer suitable for log.New. Callers own the returned file's lifetime and
// must Close it on shutdown.
func Open() (*os.File, error) {
	dir, err := LogDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, todayFileName())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: opening %s: %w", path, err)
	}
	return f, nil
}

// New builds a *log.Logger writing to w (typically the file from Open, or
// io.MultiWriter(file, os.Stderr) for a CLI that also wants console output).
func New(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags)
}

// Tag formats a log line with a bracketed component prefix, matching the
// convention used throughout this codebase ("[scheduler] ...", "[remux] ...").
func Tag(component, format string, args ...any) string {
	return fmt.Sprintf("[%s] %s", component, fmt.Sprintf(format, args...))
}

// CleanOld removes log files under LogDir older than MaxLogAgeDays. It is
// meant to run once at process startup, not on a background timer.
func CleanOld() error {
	dir, err := LogDir()
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("logging: reading %s: %w", dir, err)
	}

	cutoff := time.Now().AddDate(0, 0, -MaxLogAgeDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
