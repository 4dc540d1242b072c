// Package analytics provides read-only access to the conversation and
// contact flat-file trees for the analytics CLI command, scanning the directories
// convstore and contact already write rather than keeping a second index
// (SPEC_FULL §C.7).
package analytics

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
	"github.com/kellogg/sentrychat/internal/infrastructure/convstore"
)

// Reader scans the same on-disk layout convstore.Store and contact.Store
// write to. It holds no lock of its own: readers never race with the
// stores' writes because a clean JSON file is either fully there or not
// there yet (create-truncate-write is effectively atomic for readers who
// tolerate an occasional ENOENT on a file written moments ago).
type Reader struct {
	conversationsDir string
	contactsDir      string
}

func New(conversationsDir, contactsDir string) *Reader {
	return &Reader{conversationsDir: conversationsDir, contactsDir: contactsDir}
}

// Summary aggregates counts and domain usage across one day's conversations.
type Summary struct {
	Date                string         `json:"date"`
	TotalConversations   int            `json:"total_conversations"`
	TotalTurns           int            `json:"total_turns"`
	BlockedConversations int            `json:"blocked_conversations"`
	DomainCounts         map[string]int `json:"domain_counts"`
	ContactMessages      int            `json:"contact_messages"`
}

// ListConversations returns every conversation persisted for the given
// YYYY-MM-DD date, oldest-started first.
func (r *Reader) ListConversations(date string) ([]*entity.Conversation, error) {
	dir := filepath.Join(r.conversationsDir, date)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []*entity.Conversation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c, err := convstore.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ListContacts returns every contact message filed for the given date.
func (r *Reader) ListContacts(date string) ([]entity.ContactMessage, error) {
	dir := filepath.Join(r.contactsDir, date)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []entity.ContactMessage
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		msg, err := contact.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Summary aggregates a day's conversations and contact messages into the
// counts the admin dashboard displays.
func (r *Reader) Summary(date string) (Summary, error) {
	convs, err := r.ListConversations(date)
	if err != nil {
		return Summary{}, err
	}
	contacts, err := r.ListContacts(date)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Date: date, DomainCounts: make(map[string]int), ContactMessages: len(contacts)}
	for _, c := range convs {
		s.TotalConversations++
		s.TotalTurns += c.TotalTurns
		if c.BlockedAtLayer != "" {
			s.BlockedConversations++
		}
		for _, d := range c.DomainsUsed {
			s.DomainCounts[d]++
		}
	}
	return s, nil
}
