package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rivermist/hlsdl/internal/progress"
)

type fakeControl struct {
	cancelled atomic.Bool
	paused    atomic.Bool
}

func (c *fakeControl) IsCancelled() bool { return c.cancelled.Load() }
func (c *fakeControl) IsPaused() bool    { return c.paused.Load() }
func (c *fakeControl) Cancel()           { c.cancelled.Store(true) }

// withFakeFFmpeg installs a stub ffmpeg binary on PATH that writes a fixed
// payload to its last argument, so the engine's remux step can run without
// assuming a real ffmpeg is installed on the test host.
func withFakeFFmpeg(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script is POSIX-shell only")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\nfor a in \"$@\"; do out=\"$a\"; done\nprintf 'fake mp4' > \"$out\"\nexit 0\n"
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake ffmpeg: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func playlistServer(t *testing.T, segmentCount int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		body := "#EXTM3U\n"
		for i := 0; i < segmentCount; i++ {
			body += "s" + itoa(i) + ".ts\n"
		}
		w.Write([]byte(body))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("segment body"))
	})
	return httptest.NewServer(mux)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func TestDownloadEndToEnd(t *testing.T) {
	withFakeFFmpeg(t)

	srv := playlistServer(t, 3)
	defer srv.Close()

	tempDir := t.TempDir()
	outputDir := t.TempDir()

	params := Params{
		ID:          "task-1",
		URL:         srv.URL + "/v.m3u8",
		Name:        "movie",
		OutputDir:   outputDir,
		TempDir:     tempDir,
		Concurrency: 2,
	}
	control := &fakeControl{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshots, results, errs := Download(ctx, params, control)

	var lastSnapshot progress.Snapshot
	for snap := range snapshots {
		lastSnapshot = snap
	}

	select {
	case err := <-errs:
		t.Fatalf("Download returned error: %v", err)
	case res := <-results:
		if _, statErr := os.Stat(res.OutputPath); statErr != nil {
			t.Fatalf("output file missing: %v", statErr)
		}
		data, readErr := os.ReadFile(res.OutputPath)
		if readErr != nil {
			t.Fatalf("reading output: %v", readErr)
		}
		if string(data) != "fake mp4" {
			t.Fatalf("output = %q, want fake mp4", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for download to finish")
	}

	if lastSnapshot.Chunks != 3 || lastSnapshot.TotalChunks != 3 {
		t.Fatalf("final snapshot chunks = %d/%d, want 3/3", lastSnapshot.Chunks, lastSnapshot.TotalChunks)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "segments.json")); err != nil {
		t.Fatalf("segments.json not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "progress.dat")); err != nil {
		t.Fatalf("progress.dat not written: %v", err)
	}
}

func TestDownloadResumeSkipsCachedPlaylistAndCompletedSegments(t *testing.T) {
	withFakeFFmpeg(t)

	var playlistHits, segmentHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&playlistHits, 1)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte("#EXTM3U\ns0.ts\ns1.ts\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&segmentHits, 1)
		w.Write([]byte("segment body"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tempDir := t.TempDir()
	outputDir := t.TempDir()

	params := Params{
		ID:          "task-resume",
		URL:         srv.URL + "/v.m3u8",
		Name:        "movie",
		OutputDir:   outputDir,
		TempDir:     tempDir,
		Concurrency: 2,
	}

	// First run completes normally.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	control := &fakeControl{}
	snapshots, results, errs := Download(ctx, params, control)
	for range snapshots {
	}
	select {
	case err := <-errs:
		t.Fatalf("first run returned error: %v", err)
	case <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("first run timed out")
	}
	if playlistHits != 1 {
		t.Fatalf("playlist fetched %d times on first run, want 1", playlistHits)
	}

	// Second run against the same temp dir should reuse segments.json and
	// skip every already-completed segment.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	control2 := &fakeControl{}
	snapshots2, results2, errs2 := Download(ctx2, params, control2)
	for range snapshots2 {
	}
	select {
	case err := <-errs2:
		t.Fatalf("second run returned error: %v", err)
	case <-results2:
	case <-time.After(5 * time.Second):
		t.Fatal("second run timed out")
	}

	if playlistHits != 1 {
		t.Fatalf("playlist fetched %d times total, want 1 (cache should prevent re-fetch)", playlistHits)
	}
	if segmentHits != 2 {
		t.Fatalf("segment endpoint hit %d times total, want 2 (no re-fetch on resume)", segmentHits)
	}
}
