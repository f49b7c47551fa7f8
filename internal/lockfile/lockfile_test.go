package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestAcquireWritesHolder(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, FileName) {
		t.Errorf("unexpected lock path %q", lock.Path())
	}
	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	h := parseHolder(string(data))
	if h.PID != os.Getpid() {
		t.Errorf("holder pid = %d, want %d", h.PID, os.Getpid())
	}
	if h.StartedAt.IsZero() {
		t.Error("holder start time not recorded")
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	_, err = Acquire(dir)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %v", err)
	}
	if held.Holder.PID != os.Getpid() || !held.Holder.Running {
		t.Errorf("unexpected holder %+v", held.Holder)
	}
	if !strings.Contains(err.Error(), held.Path) {
		t.Errorf("error should name the lock file: %v", err)
	}

	// The failed attempt must not clobber the holder's info.
	data, _ := os.ReadFile(first.Path())
	if !strings.Contains(string(data), "pid="+strconv.Itoa(os.Getpid())) {
		t.Errorf("lock file content lost: %q", data)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	again.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		content string
		pid     int
		started bool
	}{
		{"pid=42\nstarted=2026-03-04T10:00:00Z\n", 42, true},
		{"pid=42\n", 42, false},
		{"pid=abc\n", 0, false},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		h := parseHolder(tt.content)
		if h.PID != tt.pid || h.StartedAt.IsZero() == tt.started {
			t.Errorf("parseHolder(%q) = %+v", tt.content, h)
		}
	}
}

func TestHolderString(t *testing.T) {
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("zero holder = %q", got)
	}
	h := Holder{PID: 7, StartedAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), Running: true}
	if got := h.String(); got != "pid 7 started 2026-03-04T10:00:00Z (running)" {
		t.Errorf("holder = %q", got)
	}
	if got := (Holder{PID: 7}).String(); got != "pid 7 (not running, stale lock)" {
		t.Errorf("holder = %q", got)
	}
}
