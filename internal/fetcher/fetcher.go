// Package fetcher implements the per-segment download: one HTTP GET,
// streamed with cancel/pause checkpoints, decrypted if bound to a key, and
// written to its deterministic local path.
package fetcher

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rivermist/hlsdl/internal/hls"
	"github.com/rivermist/hlsdl/internal/metrics"
)

// Outcome is the three-way result of one fetch attempt (spec.md §4.5):
// Success, Skipped (non-retryable, non-fatal), or Cancelled.
type Outcome int

const (
	Success Outcome = iota
	Skipped
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Control is the subset of task control flags the fetcher checks at its
// suspension points.
type Control interface {
	IsCancelled() bool
	IsPaused() bool
}

// chunkSize bounds how much is read from the response body between
// cancel/pause checkpoints.
const chunkSize = 32 * 1024

// pausePollInterval is how often a paused fetch rechecks cancel/resume.
const pausePollInterval = 100 * time.Millisecond

// Fetch performs one download attempt for seg. It never retries; the
// scheduler owns retry policy. A non-nil error means the attempt failed for
// a reason other than Skipped/Cancelled and should be retried by the caller.
func Fetch(client *http.Client, seg hls.Segment, control Control, m *metrics.Metrics, headers map[string]string) (Outcome, error) {
	if control.IsCancelled() {
		return Cancelled, nil
	}

	req, err := http.NewRequest(http.MethodGet, seg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetcher: building request for segment %d: %w", seg.Index, err)
	}
	hls.ApplyHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetcher: fetching segment %d: %w", seg.Index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &hls.HTTPStatusError{
			URL:        seg.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetcher: segment %d returned status %d", seg.Index, resp.StatusCode),
		}
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)

	for {
		if control.IsCancelled() {
			return Cancelled, nil
		}
		for control.IsPaused() {
			time.Sleep(pausePollInterval)
			if control.IsCancelled() {
				return Cancelled, nil
			}
		}

		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			m.RecordChunk(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("fetcher: reading segment %d body: %w", seg.Index, readErr)
		}
	}

	if buf.Len() == 0 {
		return Skipped, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/html") || strings.Contains(contentType, "xml") {
		return Skipped, nil
	}

	data := buf.Bytes()
	if seg.Encryption != nil {
		decrypted, err := hls.Decrypt(data, seg.Encryption, seg.Index)
		if err != nil {
			return 0, fmt.Errorf("fetcher: decrypting segment %d: %w", seg.Index, err)
		}
		data = decrypted
	}

	f, err := os.Create(seg.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("fetcher: creating %s: %w", seg.LocalPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(seg.LocalPath)
		return 0, fmt.Errorf("fetcher: writing %s: %w", seg.LocalPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(seg.LocalPath)
		return 0, fmt.Errorf("fetcher: fsyncing %s: %w", seg.LocalPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(seg.LocalPath)
		return 0, fmt.Errorf("fetcher: closing %s: %w", seg.LocalPath, err)
	}

	return Success, nil
}
