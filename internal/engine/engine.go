// Package engine wires the download core's pieces into the single entry
// point described by spec.md §2: playlist parse (or cache reload), manifest
// resume, the scheduler, the progress reporter, and finally the external
// remux collaborator. Registry admission is left to the caller, which passes
// the admitted task in as the run's Control.
package engine

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rivermist/hlsdl/internal/hls"
	"github.com/rivermist/hlsdl/internal/logging"
	"github.com/rivermist/hlsdl/internal/manifest"
	"github.com/rivermist/hlsdl/internal/metrics"
	"github.com/rivermist/hlsdl/internal/progress"
	"github.com/rivermist/hlsdl/internal/remux"
	"github.com/rivermist/hlsdl/internal/scheduler"
)

// Control is the subset of task control flags the engine and its
// collaborators read and mutate during a run.
type Control interface {
	IsCancelled() bool
	IsPaused() bool
	Cancel()
}

// Params configures a single download run.
type Params struct {
	ID          string
	URL         string
	Name        string
	OutputDir   string
	TempDir     string
	Concurrency int
	MaxRetries  int
	Headers     map[string]string
}

// Result reports where the remuxed output ended up.
type Result struct {
	OutputPath string
}

// httpTimeout bounds each request the shared client makes, including reading
// the response body. spec.md §5
// leaves per-request timeouts to the implementation; this mirrors the
// teacher's client construction (internal/core/downloader/hls.go) rather
// than leaving requests unbounded.
const httpTimeout = 60 * time.Second

// Download runs one HLS download end to end: parse (or reload) the segment
// list, resume from any prior completion manifest, drive the scheduler
// under params.Concurrency, and hand the result to the remux collaborator
// in ascending segment order. Progress snapshots are sent on the returned
// channel until the run reaches a terminal state.
func Download(ctx context.Context, params Params, control Control) (<-chan progress.Snapshot, <-chan Result, <-chan error) {
	results := make(chan Result, 1)
	errs := make(chan error, 1)

	if err := os.MkdirAll(params.TempDir, 0o755); err != nil {
		errs <- fmt.Errorf("engine: creating temp dir %s: %w", params.TempDir, err)
		closed := make(chan progress.Snapshot)
		close(closed)
		return closed, results, errs
	}

	client := &http.Client{Timeout: httpTimeout}

	segments, err := loadOrParseSegments(client, params)
	if err != nil {
		errs <- err
		closed := make(chan progress.Snapshot)
		close(closed)
		return closed, results, errs
	}

	m := metrics.New(len(segments))

	completion, err := manifest.LoadCompletion(params.TempDir)
	if err != nil {
		errs <- fmt.Errorf("engine: loading completion manifest: %w", err)
		closed := make(chan progress.Snapshot)
		close(closed)
		return closed, results, errs
	}

	snapshots := progress.Run(ctx, params.ID, control, m)

	go func() {
		defer completion.Close()

		runErr := scheduler.Run(ctx, client, segments, control, completion, m, scheduler.Params{
			Concurrency: params.Concurrency,
			MaxRetries:  params.MaxRetries,
			Headers:     params.Headers,
		})
		if runErr != nil {
			log.Print(logging.Tag("engine", "task %s: scheduler returned: %v", params.ID, runErr))
			errs <- runErr
			return
		}

		outputPath, err := remuxSegments(params, segments)
		if err != nil {
			errs <- err
			return
		}
		results <- Result{OutputPath: outputPath}
	}()

	return snapshots, results, errs
}

// loadOrParseSegments prefers the segment manifest cache (spec.md §4.3's
// resume rule) over a fresh playlist fetch. A cache hit means zero network
// requests for the playlist itself on a resumed run.
func loadOrParseSegments(client *http.Client, params Params) ([]hls.Segment, error) {
	cached, ok, err := manifest.LoadCache(params.TempDir)
	if err != nil {
		return nil, fmt.Errorf("engine: reading segment cache: %w", err)
	}
	if ok {
		return cached, nil
	}

	segments, err := hls.FetchAndParsePlaylist(client, params.URL, params.TempDir, params.Headers)
	if err != nil {
		return nil, fmt.Errorf("engine: parsing playlist: %w", err)
	}
	if err := manifest.SaveCache(params.TempDir, segments); err != nil {
		return nil, fmt.Errorf("engine: caching segment list: %w", err)
	}
	return segments, nil
}

// remuxSegments hands the completed segment files to the remux collaborator
// in ascending playlist order, independent of the order they finished
// downloading in (spec.md §4.6).
func remuxSegments(params Params, segments []hls.Segment) (string, error) {
	ordered := make([]hls.Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	tsFiles := make([]string, len(ordered))
	for i, seg := range ordered {
		tsFiles[i] = seg.LocalPath
	}

	name := params.Name
	if name == "" {
		name = params.ID
	}
	outputPath := filepath.Join(params.OutputDir, name+".mp4")

	if err := remux.Remux(params.TempDir, tsFiles, outputPath); err != nil {
		return "", fmt.Errorf("engine: remux: %w", err)
	}
	return outputPath, nil
}
