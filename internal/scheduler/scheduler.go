// Package scheduler bounds concurrent segment fetches, retries failures
// with backoff, and reconciles completion against the manifest once every
// segment has been attempted.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rivermist/hlsdl/internal/fetcher"
	"github.com/rivermist/hlsdl/internal/hls"
	"github.com/rivermist/hlsdl/internal/manifest"
	"github.com/rivermist/hlsdl/internal/metrics"
)

// DefaultMaxRetries bounds per-segment attempts before the scheduler forces
// a global cancel. The spec permits up to 99; this mirrors the source's own
// MAX_RETRIES of 5, which is plenty for transient network failures without
// letting one bad segment stall a task for minutes.
const DefaultMaxRetries = 5

// Sentinel errors distinguishing the two failing terminal states Run can
// reach (a nil error is the third, successful one).
var (
	// ErrCancelled means the run ended because the task was cancelled
	// (externally, or by a sibling segment exhausting retries) before every
	// segment completed. The temp directory and manifest are left intact.
	ErrCancelled = errors.New("scheduler: task cancelled before completion")

	// ErrIncomplete means the run ended with completed != total segments
	// but no cancellation was observed (for example because a segment was
	// Skipped). The scheduler forces this into a cancellation rather than
	// silently under-reporting.
	ErrIncomplete = errors.New("scheduler: segments missing after a clean run")
)

// Control is the subset of task control the scheduler reads and mutates.
type Control interface {
	IsCancelled() bool
	IsPaused() bool
	Cancel()
}

// Params configures one scheduler run.
type Params struct {
	Concurrency int
	MaxRetries  int // 0 uses DefaultMaxRetries
	Headers     map[string]string
}

// Run fetches every segment not already recorded complete, honoring
// concurrency and retry policy, and returns once every enqueued segment has
// reached a terminal outcome. A nil error means every segment in segments
// is confirmed complete and the caller may proceed to remux.
func Run(ctx context.Context, client *http.Client, segments []hls.Segment, control Control, completion *manifest.Completion, m *metrics.Metrics, params Params) error {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pending := admit(segments, completion, m)

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	for _, seg := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			errOnce.Do(func() { firstErr = fmt.Errorf("scheduler: acquiring semaphore: %w", err) })
			break
		}

		wg.Add(1)
		go func(seg hls.Segment) {
			defer wg.Done()
			defer sem.Release(1)

			if err := runOne(client, seg, control, completion, m, maxRetries, params.Headers); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(seg)
	}

	wg.Wait()

	total := int64(len(segments))
	completed := m.CompletedChunks()
	cancelled := control.IsCancelled()

	switch {
	case completed == total && !cancelled:
		return firstErr
	case completed != total && cancelled:
		if firstErr != nil {
			// Cancellation triggered by a segment exhausting its retries is
			// still "cancelled" for resumption purposes, but the caller
			// needs to tell it apart from a deliberate user cancel.
			return fmt.Errorf("%w: %v", ErrCancelled, firstErr)
		}
		return ErrCancelled
	default:
		control.Cancel()
		if firstErr != nil {
			return fmt.Errorf("%w: %v", ErrIncomplete, firstErr)
		}
		return ErrIncomplete
	}
}

// admit partitions segments into those needing a network fetch, crediting
// metrics for any already satisfied by the manifest plus an on-disk file.
func admit(segments []hls.Segment, completion *manifest.Completion, m *metrics.Metrics) []hls.Segment {
	pending := make([]hls.Segment, 0, len(segments))
	for _, seg := range segments {
		name := filepath.Base(seg.LocalPath)
		if completion.Done(name) {
			if info, err := os.Stat(seg.LocalPath); err == nil && info.Size() > 0 {
				m.IncCompletedChunks()
				m.AddTotalBytes(int(info.Size()))
				continue
			}
		}
		pending = append(pending, seg)
	}
	return pending
}

// runOne drives the retry loop (spec.md §4.6) for a single segment.
func runOne(client *http.Client, seg hls.Segment, control Control, completion *manifest.Completion, m *metrics.Metrics, maxRetries int, headers map[string]string) error {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if control.IsCancelled() {
			return nil
		}

		outcome, err := fetcher.Fetch(client, seg, control, m, headers)
		if err == nil {
			switch outcome {
			case fetcher.Success:
				name := filepath.Base(seg.LocalPath)
				if appendErr := completion.Append(name); appendErr != nil {
					return fmt.Errorf("scheduler: segment %d: %w", seg.Index, appendErr)
				}
				m.IncCompletedChunks()
				return nil
			case fetcher.Skipped, fetcher.Cancelled:
				return nil
			}
		}

		if attempt == maxRetries {
			control.Cancel()
			return fmt.Errorf("scheduler: segment %d exhausted %d attempts: %w", seg.Index, maxRetries, err)
		}
		sleep(backoffDelay(attempt))
	}
	return nil
}

// sleep is a package-level indirection so tests can replace real waiting
// with an instant no-op without changing the retry loop's control flow.
var sleep = time.Sleep

// backoffDelay implements spec.md §4.6: base = min(2^(attempt-1), 10)
// seconds, plus jitter uniformly in [0, 1000) ms.
func backoffDelay(attempt int) time.Duration {
	base := 1 << uint(attempt-1)
	if base > 10 {
		base = 10
	}
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return time.Duration(base)*time.Second + jitter
}
