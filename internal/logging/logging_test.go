package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTagFormatsBracketedPrefix(t *testing.T) {
	got := Tag("scheduler", "retrying segment %d (attempt %d)", 3, 2)
	want := "[scheduler] retrying segment 3 (attempt 2)"
	if got != want {
		t.Fatalf("Tag() = %q, want %q", got, want)
	}
}

func TestNewWritesToProvidedWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)
	logger.Print(Tag("remux", "invoking ffmpeg"))

	if buf.Len() == 0 {
		t.Fatal("expected log output, got none")
	}
}

func TestOpenCreatesTodayFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("HOME", dir)

	f, err := Open()
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer f.Close()

	wantName := todayFileName()
	if filepath.Base(f.Name()) != wantName {
		t.Fatalf("Open() created %q, want filename %q", f.Name(), wantName)
	}
}

func TestCleanOldRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("HOME", dir)

	logDir, err := LogDir()
	if err != nil {
		t.Fatalf("LogDir returned error: %v", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	stale := filepath.Join(logDir, "2020-01-01.log")
	fresh := filepath.Join(logDir, todayFileName())
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", p, err)
		}
	}
	oldTime := time.Now().AddDate(0, 0, -(MaxLogAgeDays + 5))
	if err := os.Chtimes(stale, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := CleanOld(); err != nil {
		t.Fatalf("CleanOld returned error: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale log file should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh log file should still exist: %v", err)
	}
}

func TestCleanOldMissingDirIsNotError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "does-not-exist"))
	t.Setenv("HOME", dir)

	if err := CleanOld(); err != nil {
		t.Fatalf("CleanOld on a missing directory should be a no-op: %v", err)
	}
}
