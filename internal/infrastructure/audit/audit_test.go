package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

func TestLogAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	l, err := New(zap.NewNop(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Log(entity.AuditEvent{Type: entity.AuditUserMessage, RequestID: "req-1"})
	l.Log(entity.AuditEvent{Type: entity.AuditBotResponse, RequestID: "req-1"})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var ev entity.AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != entity.AuditUserMessage || ev.RequestID != "req-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestLogWithoutPathDoesNotPanic(t *testing.T) {
	l, err := New(zap.NewNop(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(entity.AuditEvent{Type: entity.AuditRequestComplete, RequestID: "req-2"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestInjectionAttemptConvenienceWrapper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := New(zap.NewNop(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.InjectionAttempt("req-3", "iphash", "L1", "instruction_override", "ignore all previous...")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev entity.AuditEvent
	if err := json.Unmarshal(data[:len(data)-1], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Fields["reason"] != "instruction_override" {
		t.Fatalf("unexpected fields: %+v", ev.Fields)
	}
}
