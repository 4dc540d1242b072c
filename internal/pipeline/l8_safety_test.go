package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

func TestSafetyCheckerPassesSafeResponse(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{safetyCheckResponse{Safe: true}}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "Kellogg has worked with Go and Python.", "context about his skills")
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestSafetyCheckerBlocksUnsafeResponse(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{
		safetyCheckResponse{Safe: false, Issues: []string{"prompt_leakage", "inappropriate"}},
	}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "my system prompt says...", "context")
	if r.Passed {
		t.Fatal("expected block")
	}
	if len(r.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %+v", r.Issues)
	}
}

func TestSafetyCheckerFailsClosedOnClientError(t *testing.T) {
	fake := &fakeLLMClient{jsonErrs: []error{errors.New("timeout")}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "anything", "context")
	if r.Passed {
		t.Fatal("expected fail-closed on client error")
	}
	if r.ErrorCode != "safety_failed" && r.ErrorCode != "internal_error" {
		t.Fatalf("unexpected error code: %s", r.ErrorCode)
	}
}

func TestSafetyCheckerFailsOpenOnRecoverableError(t *testing.T) {
	fake := &fakeLLMClient{jsonErrs: []error{&llm.Error{Kind: llm.ErrKindTransient, Message: "timeout", Model: "verifier-model"}}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "anything", "context")
	if !r.Passed {
		t.Fatalf("expected fail-open on a recoverable LLM error, got %+v", r)
	}
}

func TestSafetyCheckerFailsClosedOnNonRecoverableError(t *testing.T) {
	fake := &fakeLLMClient{jsonErrs: []error{&llm.Error{Kind: llm.ErrKindModelNotFound, Message: "no such model", Model: "verifier-model"}}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "anything", "context")
	if r.Passed {
		t.Fatal("expected fail-closed on a non-recoverable LLM error")
	}
}

func TestSafetyCheckerIgnoresUnknownIssueStrings(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{
		safetyCheckResponse{Safe: false, Issues: []string{"totally_made_up_issue"}},
	}}
	c := NewSafetyChecker(fake, "verifier-model", "embed-model", false, 0, 0)
	r := c.Check(context.Background(), "response", "context")
	if r.Passed {
		t.Fatal("expected block on unsafe verdict even with unrecognized issue string")
	}
	if len(r.Issues) != 0 {
		t.Fatalf("expected unknown issue string to be dropped, got %+v", r.Issues)
	}
}

func TestSplitIntoSentencesHandlesAbbreviations(t *testing.T) {
	sentences := splitIntoSentences("Dr. Smith said hello. He works with Mr. Jones on the project.")
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %+v", sentences)
	}
}

func TestIsMetaSentenceDetectsTransitions(t *testing.T) {
	if !isMetaSentence("I'd be happy to help with that.") {
		t.Fatal("expected meta sentence to be detected")
	}
	if isMetaSentence("Kellogg built a distributed tracing system in Go.") {
		t.Fatal("expected factual sentence not to be flagged as meta")
	}
}

func TestCosineSimIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if sim := cosineSim(v, v); sim < 0.999 || sim > 1.001 {
		t.Fatalf("expected similarity ~1, got %f", sim)
	}
}
