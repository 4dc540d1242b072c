package convstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetOrCreateNewAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 10, 30*time.Minute)

	c := s.GetOrCreate("", "iphash-1")
	if c.ID == "" {
		t.Fatal("expected a generated id")
	}

	now := time.Now()
	if err := s.AppendTurn(c.ID, "hello", now, "hi there", "general", now, 42); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	day := c.StartedAt.UTC().Format("2006-01-02")
	path := filepath.Join(dir, day, "conv_"+c.ID+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected persisted file: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != c.ID || len(loaded.Messages) != 2 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.Messages[0].Content != "hello" || loaded.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected message content: %+v", loaded.Messages)
	}
}

func TestAtTurnLimit(t *testing.T) {
	s := New(t.TempDir(), 1, 30*time.Minute)
	c := s.GetOrCreate("", "h")
	if s.AtTurnLimit(c.ID) {
		t.Fatal("fresh conversation should not be at turn limit")
	}
	now := time.Now()
	if err := s.AppendTurn(c.ID, "u", now, "a", "general", now, 1); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if !s.AtTurnLimit(c.ID) {
		t.Fatal("expected turn limit reached after 1 turn with maxTurns=1")
	}
}

func TestCleanupExpiredFlushesBeforeEvicting(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 10, time.Millisecond)
	c := s.GetOrCreate("", "h")
	now := time.Now()
	if err := s.AppendTurn(c.ID, "u", now, "a", "general", now, 1); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	s.CleanupExpired()

	if _, ok := s.Snapshot(c.ID); ok {
		t.Fatal("expected conversation to be evicted from memory")
	}

	day := c.StartedAt.UTC().Format("2006-01-02")
	path := filepath.Join(dir, day, "conv_"+c.ID+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected conversation flushed to disk before eviction: %v", err)
	}
}

func TestGetOrCreateReplacesExpiredID(t *testing.T) {
	s := New(t.TempDir(), 10, time.Millisecond)
	first := s.GetOrCreate("", "h")
	time.Sleep(5 * time.Millisecond)
	second := s.GetOrCreate(first.ID, "h")
	if second.ID == first.ID {
		t.Fatal("expected a fresh conversation id after expiry")
	}
}
