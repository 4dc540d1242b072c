package tool

import (
	"context"
	"testing"
	"time"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
)

func TestParseToolCallsExtractsKnownTool(t *testing.T) {
	known := map[string]bool{"save_message_for_contact": true}
	response := "I'll save that now.\n\n```tool_call\n{\"tool\": \"save_message_for_contact\", \"parameters\": {\"message\": \"hi\"}}\n```"
	calls := ParseToolCalls(response, known)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Tool != "save_message_for_contact" || calls[0].Parameters["message"] != "hi" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}

func TestParseToolCallsSkipsUnknownTool(t *testing.T) {
	known := map[string]bool{"save_message_for_contact": true}
	response := "```tool_call\n{\"tool\": \"delete_everything\", \"parameters\": {}}\n```"
	calls := ParseToolCalls(response, known)
	if len(calls) != 0 {
		t.Fatalf("expected unknown tool to be skipped, got %d calls", len(calls))
	}
}

func TestParseToolCallsSkipsInvalidJSON(t *testing.T) {
	known := map[string]bool{"save_message_for_contact": true}
	response := "```tool_call\nnot json\n```"
	calls := ParseToolCalls(response, known)
	if len(calls) != 0 {
		t.Fatalf("expected invalid JSON to be skipped, got %d calls", len(calls))
	}
}

func TestStripToolCallsRemovesBlock(t *testing.T) {
	response := "Sure thing.\n\n```tool_call\n{\"tool\": \"x\"}\n```"
	stripped := StripToolCalls(response)
	if stripped != "Sure thing." {
		t.Fatalf("got %q", stripped)
	}
}

func TestHasToolCalls(t *testing.T) {
	if HasToolCalls("no tools here") {
		t.Fatal("expected false")
	}
	if !HasToolCalls("```tool_call\n{}\n```") {
		t.Fatal("expected true")
	}
}

func TestExecutorDispatchesRegisteredHandler(t *testing.T) {
	e := NewExecutor(time.Second)
	e.Register("echo", func(_ context.Context, params map[string]interface{}) entity.ToolResult {
		return entity.ToolResult{Success: true, Tool: "echo", Result: "ok"}
	})
	result := e.Execute(context.Background(), entity.ToolCall{Tool: "echo"})
	if !result.Success || result.Result != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecutorUnknownToolFails(t *testing.T) {
	e := NewExecutor(time.Second)
	result := e.Execute(context.Background(), entity.ToolCall{Tool: "missing"})
	if result.Success {
		t.Fatal("expected failure for unregistered tool")
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	e := NewExecutor(time.Second)
	e.Register("boom", func(_ context.Context, _ map[string]interface{}) entity.ToolResult {
		panic("kaboom")
	})
	result := e.Execute(context.Background(), entity.ToolCall{Tool: "boom"})
	if result.Success {
		t.Fatal("expected panic to surface as a failed result")
	}
}

func TestSaveMessageHandlerPersistsToContactStore(t *testing.T) {
	store := contact.New(t.TempDir())
	handler := SaveMessageHandler(store, "conv-1", "iphash")
	result := handler(context.Background(), map[string]interface{}{
		"message":       "please reach out",
		"visitor_name":  "Ada",
		"visitor_email": "ada@example.com",
	})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestSaveMessageHandlerRejectsEmptyMessage(t *testing.T) {
	store := contact.New(t.TempDir())
	handler := SaveMessageHandler(store, "conv-1", "iphash")
	result := handler(context.Background(), map[string]interface{}{})
	if result.Success {
		t.Fatal("expected failure for missing message")
	}
}

func TestFormatResultsForPrompt(t *testing.T) {
	out := FormatResultsForPrompt([]entity.ToolResult{{Tool: "save_message_for_contact", Success: true, Result: "ok"}})
	if out == "" {
		t.Fatal("expected non-empty prompt section")
	}
}
