package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestIntentParserParsesConfidentMessage(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{
		intentResponse{Topic: "projects", QuestionType: "factual", Entities: []string{"CAIRN"}, Tone: "curious", Confidence: 0.9},
	}}
	p := NewIntentParser(fake, "router-model")
	r := p.Parse(context.Background(), "What is CAIRN?")
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r.Status != StatusL3Parsed {
		t.Fatalf("expected parsed status, got %s", r.Status)
	}
	if r.Intent.Topic != "projects" || len(r.Intent.Entities) != 1 || r.Intent.Entities[0] != "CAIRN" {
		t.Fatalf("unexpected intent: %+v", r.Intent)
	}
}

func TestIntentParserMarksLowConfidenceAmbiguous(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{
		intentResponse{Topic: "general", QuestionType: "factual", Tone: "neutral", Confidence: 0.1},
	}}
	p := NewIntentParser(fake, "router-model")
	r := p.Parse(context.Background(), "hmm")
	if !r.Passed {
		t.Fatal("expected ambiguous result to still pass")
	}
	if r.Status != StatusL3Ambiguous {
		t.Fatalf("expected ambiguous status, got %s", r.Status)
	}
}

func TestIntentParserDegradesUnrecognizedEnumValues(t *testing.T) {
	fake := &fakeLLMClient{jsonResponses: []interface{}{
		intentResponse{Topic: "bogus", QuestionType: "bogus", Tone: "bogus", Confidence: 0.9},
	}}
	p := NewIntentParser(fake, "router-model")
	r := p.Parse(context.Background(), "x")
	if r.Intent.Topic != "general" || r.Intent.QuestionType != "ambiguous" || r.Intent.Tone != "neutral" {
		t.Fatalf("expected degraded defaults, got %+v", r.Intent)
	}
}

func TestIntentParserPassesOnClientErrorWithDefaultIntent(t *testing.T) {
	fake := &fakeLLMClient{jsonErrs: []error{errors.New("model unavailable")}}
	p := NewIntentParser(fake, "router-model")
	r := p.Parse(context.Background(), "anything")
	if !r.Passed {
		t.Fatal("L3 must always pass, even on classifier error")
	}
	if r.Status != StatusL3Error {
		t.Fatalf("expected error status, got %s", r.Status)
	}
	if r.Intent.Topic != "general" || r.Intent.QuestionType != "ambiguous" {
		t.Fatalf("unexpected default intent: %+v", r.Intent)
	}
}
