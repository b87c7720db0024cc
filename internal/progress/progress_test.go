package progress

import (
	"context"
	"testing"
	"time"

	"github.com/rivermist/hlsdl/internal/metrics"
)

type fakeControl struct {
	cancelled bool
	paused    bool
}

func (f *fakeControl) IsCancelled() bool { return f.cancelled }
func (f *fakeControl) IsPaused() bool    { return f.paused }

func recvWithTimeout(t *testing.T, ch <-chan Snapshot) (Snapshot, bool) {
	t.Helper()
	select {
	case snap, ok := <-ch:
		return snap, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return Snapshot{}, false
	}
}

func TestRunEmitsDownloadingThenMergingAndCloses(t *testing.T) {
	m := metrics.New(2)
	control := &fakeControl{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Run(ctx, "task-1", control, m)

	snap, ok := recvWithTimeout(t, ch)
	if !ok {
		t.Fatal("channel closed before first snapshot")
	}
	if snap.Status != StatusDownloading {
		t.Fatalf("Status = %d, want StatusDownloading", snap.Status)
	}
	if snap.ID != "task-1" {
		t.Fatalf("ID = %q, want task-1", snap.ID)
	}

	m.IncCompletedChunks()
	m.IncCompletedChunks()

	for {
		snap, ok = recvWithTimeout(t, ch)
		if !ok {
			t.Fatal("channel closed before a merging snapshot was observed")
		}
		if snap.Status == StatusMerging {
			break
		}
	}
	if !snap.IsMerge {
		t.Fatalf("IsMerge = false on a StatusMerging snapshot")
	}

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed once merging is observed")
	}
}

func TestRunClosesOnCancellation(t *testing.T) {
	m := metrics.New(5)
	control := &fakeControl{cancelled: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Run(ctx, "task-2", control, m)

	snap, ok := recvWithTimeout(t, ch)
	if !ok {
		t.Fatal("channel closed before any snapshot")
	}
	if snap.Status != StatusCancelled {
		t.Fatalf("Status = %d, want StatusCancelled", snap.Status)
	}

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after a cancelled snapshot")
	}
}

func TestRunDedupesUnchangedSnapshots(t *testing.T) {
	m := metrics.New(10)
	control := &fakeControl{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Run(ctx, "task-3", control, m)

	if _, ok := recvWithTimeout(t, ch); !ok {
		t.Fatal("channel closed before first snapshot")
	}

	// With nothing changing, no further snapshot should arrive quickly even
	// though several ticks elapse.
	select {
	case snap, ok := <-ch:
		if ok {
			t.Fatalf("unexpected duplicate snapshot emitted: %+v", snap)
		}
	case <-time.After(700 * time.Millisecond):
	}
}
