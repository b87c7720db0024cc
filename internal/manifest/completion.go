// Package manifest implements the two on-disk resumption records kept in a
// task's temp directory: the completion manifest (progress.dat) and the
// segment metadata cache (segments.json).
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CompletionFile is "progress.dat": an append-only, newline-delimited record
// of relative filenames that have been fully downloaded, decrypted, and
// fsynced. Duplicates are tolerated; readers deduplicate into a set.
const CompletionFile = "progress.dat"

// Completion tracks the completed-segment set for one task and appends to
// its backing file under a mutex, matching the single-writer-handle
// lifetime the scheduler owns for the duration of a run.
type Completion struct {
	mu   sync.Mutex
	file *os.File
	done map[string]struct{}
}

// LoadCompletion reads the existing completion manifest (if any) into a set
// and opens it in append mode for subsequent writes. A missing file is not
// an error: it means no segment has completed yet.
func LoadCompletion(tempDir string) (*Completion, error) {
	path := filepath.Join(tempDir, CompletionFile)
	done := make(map[string]struct{})

	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			name := strings.TrimSpace(scanner.Text())
			if name != "" {
				done[name] = struct{}{}
			}
		}
		err = scanner.Err()
		existing.Close()
		if err != nil {
			return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("manifest: opening %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("manifest: opening %s for append: %w", path, err)
	}

	return &Completion{file: f, done: done}, nil
}

// Done reports whether relativeName was already recorded as complete when
// the manifest was loaded, or has since been appended via Append.
func (c *Completion) Done(relativeName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.done[relativeName]
	return ok
}

// Append records relativeName as complete. Safe for concurrent use; order
// between concurrent appends does not matter per the manifest's invariants.
func (c *Completion) Append(relativeName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.file.WriteString(relativeName + "\n"); err != nil {
		return fmt.Errorf("manifest: appending %q: %w", relativeName, err)
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("manifest: fsyncing after %q: %w", relativeName, err)
	}
	c.done[relativeName] = struct{}{}
	return nil
}

// Count returns the number of distinct completed filenames currently known.
func (c *Completion) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// Close releases the underlying file handle. Callers must not perform
// network I/O while holding the mutex, but Close itself requires no lock
// since it is only called once the scheduler has stopped issuing appends.
func (c *Completion) Close() error {
	return c.file.Close()
}
