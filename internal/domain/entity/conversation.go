// Package entity holds the core data shapes of the pipeline: conversations,
// intents, domains, context chunks, tool calls, audit events, and contact
// messages. None of these types know how they are persisted; storage lives
// in internal/infrastructure.
package entity

import (
	"errors"
	"time"
)

// Role tags a conversation message as having come from the end user or the
// assistant. No other roles exist in this pipeline.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConvMessage is one turn in a Conversation's history.
type ConvMessage struct {
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Domain         string    `json:"domain,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

var (
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationFull      = errors.New("conversation turn count exceeds maximum")
)

// Conversation is the full per-session history the orchestrator appends to.
// Exactly one goroutine may hold it at a time; callers acquire it through
// convstore's locked façade, never directly.
type Conversation struct {
	ID                string        `json:"id"`
	StartedAt         time.Time     `json:"started_at"`
	LastActivity      time.Time     `json:"last_activity"`
	IPHash            string        `json:"ip_hash"`
	TotalTurns        int           `json:"total_turns"`
	DomainsUsed       []string      `json:"domains_used"`
	TotalResponseTime int64         `json:"total_response_time_ms"`
	BlockedAtLayer    string        `json:"blocked_at_layer,omitempty"`
	Messages          []ConvMessage `json:"messages"`
}

// NewConversation starts a fresh conversation for the given id and peer hash.
func NewConversation(id, ipHash string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           id,
		StartedAt:    now,
		LastActivity: now,
		IPHash:       ipHash,
		DomainsUsed:  []string{},
		Messages:     []ConvMessage{},
	}
}

// Expired reports whether the conversation has been idle longer than ttl.
func (c *Conversation) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.LastActivity) > ttl
}

// AtTurnLimit reports whether another user message would exceed maxTurns.
func (c *Conversation) AtTurnLimit(maxTurns int) bool {
	return c.TotalTurns >= maxTurns
}

// AppendTurn atomically records one user/assistant pair. It is the only
// mutator that adds messages, so history can never contain a user message
// without its paired assistant reply (§5 ordering guarantee).
func (c *Conversation) AppendTurn(userText string, userAt time.Time, assistantText, domain string, assistantAt time.Time, responseTimeMs int64) {
	c.Messages = append(c.Messages,
		ConvMessage{Role: RoleUser, Content: userText, Timestamp: userAt},
		ConvMessage{Role: RoleAssistant, Content: assistantText, Timestamp: assistantAt, Domain: domain, ResponseTimeMs: responseTimeMs},
	)
	c.TotalTurns++
	c.LastActivity = assistantAt
	c.TotalResponseTime += responseTimeMs
	if domain != "" && !containsString(c.DomainsUsed, domain) {
		c.DomainsUsed = append(c.DomainsUsed, domain)
	}
}

// MarkBlocked records the stage a request was rejected at without touching
// message history — blocked requests never pollute the conversation (§7).
func (c *Conversation) MarkBlocked(stage string) {
	c.BlockedAtLayer = stage
}

// RecentTurns returns up to n most recent messages, oldest first, for
// compressing into a prompt's conversation-history section.
func (c *Conversation) RecentTurns(n int) []ConvMessage {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
