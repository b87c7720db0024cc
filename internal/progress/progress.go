// Package progress runs the periodic reporter that turns a task's metrics
// and control flags into a stream of deduplicated status snapshots.
package progress

import (
	"context"
	"time"

	"github.com/rivermist/hlsdl/internal/metrics"
)

// Status codes match the four states a running task can report.
const (
	StatusCancelled  = 0
	StatusPaused     = 1
	StatusDownloading = 2
	StatusMerging    = 3
)

// Control is the subset of task control flags the reporter reads each tick.
type Control interface {
	IsCancelled() bool
	IsPaused() bool
}

// Snapshot is one reported state of a task, emitted only when it differs
// from the previously emitted snapshot.
type Snapshot struct {
	ID              string
	Progress        uint32
	Speed           string
	Status          int
	IsMerge         bool
	Chunks          int64
	TotalChunks     int64
	DownloadedBytes int64
	TotalBytes      int64
}

func (s Snapshot) equalIgnoringID(other Snapshot) bool {
	return s.Progress == other.Progress &&
		s.Speed == other.Speed &&
		s.Status == other.Status &&
		s.IsMerge == other.IsMerge &&
		s.Chunks == other.Chunks &&
		s.TotalChunks == other.TotalChunks &&
		s.DownloadedBytes == other.DownloadedBytes &&
		s.TotalBytes == other.TotalBytes
}

// tickInterval is how often the reporter samples metrics and control state.
const tickInterval = 200 * time.Millisecond

// Run starts the reporting loop for id, sampling control and m every tick.
// It sends a Snapshot on the returned channel whenever the computed state
// differs from the last one sent, and closes the channel once it observes
// cancellation or completion (completed == total > 0). The loop also exits,
// without a final send, if ctx is cancelled first.
func Run(ctx context.Context, id string, control Control, m *metrics.Metrics) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		var last Snapshot
		haveLast := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cancelled := control.IsCancelled()
			paused := control.IsPaused()
			total := m.TotalChunks()
			completed := m.CompletedChunks()
			isMerge := total > 0 && completed == total

			status := StatusDownloading
			switch {
			case cancelled:
				status = StatusCancelled
			case paused:
				status = StatusPaused
			case isMerge:
				status = StatusMerging
			}

			snap := Snapshot{
				ID:              id,
				Progress:        uint32(m.Progress() + 0.5),
				Speed:           m.WindowedSpeed(),
				Status:          status,
				IsMerge:         isMerge,
				Chunks:          completed,
				TotalChunks:     total,
				DownloadedBytes: m.DownloadedBytes(),
				TotalBytes:      m.TotalBytes(),
			}

			if !haveLast || !snap.equalIgnoringID(last) {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
				last = snap
				haveLast = true
			}

			if cancelled || isMerge {
				return
			}
		}
	}()

	return out
}
