package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rivermist/hlsdl/internal/hls"
)

// CacheFile is "segments.json": the full ordered descriptor list serialized
// after the first successful playlist parse, letting resume skip network
// parsing entirely.
const CacheFile = "segments.json"

// LoadCache reads the segment cache from tempDir. It returns (nil, false,
// nil) when the file is absent, so callers can fall through to parsing
// the playlist.
func LoadCache(tempDir string) ([]hls.Segment, bool, error) {
	path := filepath.Join(tempDir, CacheFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	var segments []hls.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, false, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	return segments, true, nil
}

// SaveCache writes segments to tempDir atomically: it serializes to a
// sibling temp file and renames it into place, so a concurrent reader (or a
// crash mid-write) never observes a partial segments.json.
func SaveCache(tempDir string, segments []hls.Segment) error {
	path := filepath.Join(tempDir, CacheFile)

	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("manifest: encoding %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(tempDir, "segments-*.json.tmp")
	if err != nil {
		return fmt.Errorf("manifest: creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("manifest: writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("manifest: fsyncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("manifest: closing %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("manifest: renaming into %s: %w", path, err)
	}
	return nil
}
