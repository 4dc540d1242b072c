package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contextstore"
)

func writeCtxFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestContextStageOutOfScopeYieldsNoContext(t *testing.T) {
	reg, _ := contextstore.NewRegistry("")
	basic := contextstore.NewBasicRetriever(reg, t.TempDir(), 10000)
	stage := NewContextStage(basic, nil, false)
	r := stage.Retrieve(context.Background(), entity.DomainOutOfScope, "anything")
	if r.Context.Status != entity.ContextNone {
		t.Fatalf("expected no_context, got %v", r.Context.Status)
	}
	if !r.Passed {
		t.Fatal("expected pass")
	}
}

func TestContextStageUsesBasicRetrieverWhenSemanticDisabled(t *testing.T) {
	root := t.TempDir()
	content := ""
	for i := 0; i < 50; i++ {
		content += "Professional background detail about skills and projects. "
	}
	writeCtxFile(t, root, "professional/skills.md", content)
	writeCtxFile(t, root, "professional/resume.md", content)

	reg, _ := contextstore.NewRegistry("")
	basic := contextstore.NewBasicRetriever(reg, root, 100000)
	stage := NewContextStage(basic, nil, false)

	r := stage.Retrieve(context.Background(), entity.DomainProfessional, "what are your skills")
	if r.Status != StatusL5Success && r.Status != StatusL5Partial {
		t.Fatalf("expected success or partial status, got %v", r.Status)
	}
	if len(r.Context.Loaded) == 0 {
		t.Fatal("expected loaded sources")
	}
}
