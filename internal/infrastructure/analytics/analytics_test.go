package analytics

import (
	"testing"
	"time"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
	"github.com/kellogg/sentrychat/internal/infrastructure/convstore"
)

func TestSummaryAggregatesAcrossStores(t *testing.T) {
	convDir := t.TempDir()
	contactDir := t.TempDir()

	cs := convstore.New(convDir, 10, 30*time.Minute)
	c1 := cs.GetOrCreate("", "h1")
	now := time.Now()
	if err := cs.AppendTurn(c1.ID, "hi", now, "hello", "general", now, 10); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	c2 := cs.GetOrCreate("", "h2")
	if err := cs.AppendTurn(c2.ID, "bio?", now, "answer", "bio", now, 20); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	ks := contact.New(contactDir)
	if _, err := ks.Save(entity.ContactMessage{Message: "reach out"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	day := now.UTC().Format("2006-01-02")
	r := New(convDir, contactDir)

	convs, err := r.ListConversations(day)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}

	contacts, err := r.ListContacts(day)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}

	summary, err := r.Summary(day)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalConversations != 2 || summary.TotalTurns != 2 || summary.ContactMessages != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.DomainCounts["general"] != 1 || summary.DomainCounts["bio"] != 1 {
		t.Fatalf("unexpected domain counts: %+v", summary.DomainCounts)
	}
}

func TestListConversationsMissingDateReturnsEmpty(t *testing.T) {
	r := New(t.TempDir(), t.TempDir())
	convs, err := r.ListConversations("2000-01-01")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected empty slice, got %d", len(convs))
	}
}
