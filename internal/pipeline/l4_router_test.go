package pipeline

import (
	"testing"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

func TestRouterRoutesGreetingToMeta(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{QuestionType: entity.QuestionGreeting}, "hi there")
	if res.Domain != entity.DomainMeta || res.Confidence != 1.0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRouterDirectTopicMapping(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{Topic: entity.TopicSkills, Confidence: 0.7}, "what languages do you know")
	if res.Domain != entity.DomainProfessional || res.Confidence != 0.7 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRouterKeywordFallback(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{Topic: "unmapped_topic", Confidence: 0.4}, "tell me about your robot team")
	if res.Domain != entity.DomainHobbies {
		t.Fatalf("expected hobbies domain, got %+v", res)
	}
}

func TestRouterProjectNameInvariant(t *testing.T) {
	r := NewRouter([]string{"CAIRN", "ReOS"})
	res := r.Route(entity.Intent{Topic: entity.TopicChatSystem, Confidence: 0.6}, "What is CAIRN?")
	if res.Domain != entity.DomainProjects {
		t.Fatalf("expected project name to override chat_system topic mapping, got %+v", res)
	}
}

func TestRouterGeneralFallsBackToProfessional(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{Topic: entity.TopicGeneral, Confidence: 0.6}, "so, anyway")
	if res.Domain != entity.DomainProfessional || res.Confidence != 0.5 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRouterOutOfScopeWhenNothingMatches(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{Topic: entity.TopicGeneral, Confidence: 0.2}, "what's the weather like on mars")
	if res.Domain != entity.DomainOutOfScope {
		t.Fatalf("expected out_of_scope, got %+v", res)
	}
	if !res.Passed {
		t.Fatal("out_of_scope routing must still pass")
	}
	if res.ErrorMessage == "" {
		t.Fatal("expected a fallback error message for out_of_scope")
	}
}

func TestRouterConfidenceCapsAtPointEight(t *testing.T) {
	r := NewRouter(nil)
	res := r.Route(entity.Intent{Topic: "unmapped", Confidence: 0.9}, "work job engineer python programming")
	if res.Confidence > 0.8 {
		t.Fatalf("expected confidence capped at 0.8, got %f", res.Confidence)
	}
}
