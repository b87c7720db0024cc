// Package metrics tracks the atomic counters and windowed throughput sample
// buffer a running download task exposes to its progress reporter.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// maxSamples bounds the sample buffer so a long-running task with many small
// chunks doesn't grow it unbounded.
const maxSamples = 3200

// window is how far back RecordChunk samples are considered for the
// throughput calculation.
const window = time.Second

type sample struct {
	at    time.Time
	bytes int
}

// Metrics holds one task's counters: segment completion, byte totals, and a
// ring of recent chunk sizes used to compute a windowed transfer rate.
type Metrics struct {
	totalChunks     int64
	completedChunks atomic.Int64
	totalBytes      atomic.Int64
	downloadedBytes atomic.Int64

	mu      sync.Mutex
	samples []sample
}

// New creates a Metrics for a task with the given total segment count.
func New(totalChunks int) *Metrics {
	return &Metrics{totalChunks: int64(totalChunks)}
}

// TotalChunks returns the fixed segment count the task was created with.
func (m *Metrics) TotalChunks() int64 {
	return m.totalChunks
}

// CompletedChunks returns the number of segments marked done so far.
func (m *Metrics) CompletedChunks() int64 {
	return m.completedChunks.Load()
}

// IncCompletedChunks increments the completed-segment counter by one.
func (m *Metrics) IncCompletedChunks() {
	m.completedChunks.Add(1)
}

// AddTotalBytes accumulates size into the running total-bytes estimate. The
// scheduler's admission pass calls it for each segment already complete on
// disk; freshly downloaded segments do not add to it. It only grows and is
// never reset mid-run.
func (m *Metrics) AddTotalBytes(size int) {
	m.totalBytes.Add(int64(size))
}

// DownloadedBytes returns the cumulative byte count recorded via RecordChunk.
func (m *Metrics) DownloadedBytes() int64 {
	return m.downloadedBytes.Load()
}

// TotalBytes returns the running total-bytes estimate.
func (m *Metrics) TotalBytes() int64 {
	return m.totalBytes.Load()
}

// RecordChunk records size bytes of freshly downloaded data at the current
// time, for both the cumulative byte counter and the windowed speed sample
// buffer.
func (m *Metrics) RecordChunk(size int) {
	m.mu.Lock()
	m.samples = append(m.samples, sample{at: time.Now(), bytes: size})
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
	m.mu.Unlock()
	m.downloadedBytes.Add(int64(size))
}

// WindowedSpeed returns the transfer rate observed over the trailing second,
// formatted as "123.45 KB/s" or "1.23 MB/s". With no samples in the window
// it returns "0.00 KB/s".
func (m *Metrics) WindowedSpeed() string {
	now := time.Now()
	cutoff := now.Add(-window)

	m.mu.Lock()
	var sum int
	var earliest time.Time
	for _, s := range m.samples {
		if s.at.Before(cutoff) {
			continue
		}
		sum += s.bytes
		if earliest.IsZero() || s.at.Before(earliest) {
			earliest = s.at
		}
	}
	m.mu.Unlock()

	if sum == 0 {
		return "0.00 KB/s"
	}

	elapsed := now.Sub(cutoff).Seconds()
	if elapsed < 0.5 {
		elapsed = 0.5
	}
	bytesPerSecond := float64(sum) / elapsed
	speedKB := bytesPerSecond / 1024.0

	if speedKB >= 1024.0 {
		return fmt.Sprintf("%.2f MB/s", speedKB/1024.0)
	}
	return fmt.Sprintf("%.2f KB/s", speedKB)
}

// Progress returns the completion percentage, clamped to [0, 100]:
// completed segments over the fixed total segment count.
func (m *Metrics) Progress() float64 {
	if m.totalChunks == 0 {
		return 0
	}
	chunks := float64(m.completedChunks.Load())
	return clampPercent(chunks / float64(m.totalChunks) * 100)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
