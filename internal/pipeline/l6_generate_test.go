package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/tool"
)

func TestGeneratorOutOfScopeShortCircuitsWithoutCallingModel(t *testing.T) {
	fake := &fakeLLMClient{}
	g := NewGenerator(fake, "generator-model", nil)
	r := g.Generate(context.Background(), "what's the capital of france", entity.DomainOutOfScope, "", nil, nil, nil, nil)
	if !r.Passed || r.Response == "" {
		t.Fatalf("expected canned out-of-scope response, got %+v", r)
	}
	if fake.calls != 0 {
		t.Fatal("expected no model call for out-of-scope domain")
	}
}

func TestGeneratorReturnsSuccessResponse(t *testing.T) {
	fake := &fakeLLMClient{chatResponses: []string{"Kellogg knows Go, Python, and Rust."}}
	g := NewGenerator(fake, "generator-model", nil)
	r := g.Generate(context.Background(), "what languages does he know", entity.DomainProfessional, "skills context", []string{"skills.md"}, nil, nil, nil)
	if !r.Passed || r.Status != StatusL6Success {
		t.Fatalf("expected success, got %+v", r)
	}
	if r.Response != "Kellogg knows Go, Python, and Rust." {
		t.Fatalf("unexpected response: %q", r.Response)
	}
}

func TestGeneratorParsesToolCalls(t *testing.T) {
	fake := &fakeLLMClient{chatResponses: []string{
		"Sure, I'll send that.\n```tool_call\n{\"tool\": \"save_message_for_contact\", \"parameters\": {\"message\": \"hello\"}}\n```",
	}}
	g := NewGenerator(fake, "generator-model", []tool.Definition{tool.SaveMessageTool})
	known := map[string]bool{"save_message_for_contact": true}
	r := g.Generate(context.Background(), "tell him hello", entity.DomainLinkedIn, "", nil, nil, nil, known)
	if !r.Passed || r.Status != StatusL6ToolCall {
		t.Fatalf("expected tool_call status, got %+v", r)
	}
	if len(r.ToolCalls) != 1 || r.ToolCalls[0].Tool != "save_message_for_contact" {
		t.Fatalf("unexpected tool calls: %+v", r.ToolCalls)
	}
	if r.Response == "" {
		t.Fatal("expected stripped visible response to remain non-empty")
	}
}

func TestGeneratorDegradesOnClientError(t *testing.T) {
	fake := &fakeLLMClient{chatErrs: []error{errors.New("model unavailable")}}
	g := NewGenerator(fake, "generator-model", nil)
	r := g.Generate(context.Background(), "hi", entity.DomainProfessional, "", nil, nil, nil, nil)
	if r.Passed {
		t.Fatal("expected failure on client error")
	}
	if !r.Degraded {
		t.Fatal("expected Degraded to be set")
	}
}

func TestGeneratorTreatsEmptyResponseAsError(t *testing.T) {
	fake := &fakeLLMClient{chatResponses: []string{"   "}}
	g := NewGenerator(fake, "generator-model", nil)
	r := g.Generate(context.Background(), "hi", entity.DomainProfessional, "", nil, nil, nil, nil)
	if r.Passed {
		t.Fatal("expected failure on empty response")
	}
}

func TestFallbackResponseHasEntryPerDomain(t *testing.T) {
	domains := []entity.Domain{
		entity.DomainProfessional, entity.DomainProjects, entity.DomainHobbies,
		entity.DomainPhilosophy, entity.DomainLinkedIn, entity.DomainMeta, entity.DomainOutOfScope,
	}
	for _, d := range domains {
		if FallbackResponse(d) == "" {
			t.Fatalf("expected non-empty fallback for domain %s", d)
		}
	}
}
