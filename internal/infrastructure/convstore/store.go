// Package convstore holds the in-memory conversation map plus its flat-file
// persistence, guarded by a single mutex with short critical sections, the
// same shape as the teacher gateway's in-memory repositories generalized to
// write-through flat files instead of a database (§3, §5, §6).
package convstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// Store is the façade every caller goes through; the underlying map is
// never exposed directly (§9 "never expose the underlying maps").
type Store struct {
	mu           sync.Mutex
	conversations map[string]*entity.Conversation
	maxTurns     int
	idleTTL      time.Duration
	dir          string
}

func New(dir string, maxTurns int, idleTTL time.Duration) *Store {
	return &Store{
		conversations: make(map[string]*entity.Conversation),
		maxTurns:      maxTurns,
		idleTTL:       idleTTL,
		dir:           dir,
	}
}

// GetOrCreate returns the conversation for id, or starts a new one if id is
// empty, unknown, or expired (a fresh identifier is issued in that case).
// ipHash is attached only when a new conversation is created.
func (s *Store) GetOrCreate(id, ipHash string) *entity.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if c, ok := s.conversations[id]; ok {
			if !c.Expired(s.idleTTL, time.Now()) {
				return c
			}
			s.flushAndEvictLocked(id, c)
		}
	}

	newID := uuid.NewString()
	c := entity.NewConversation(newID, ipHash)
	s.conversations[newID] = c
	return c
}

// AppendTurn appends a user/assistant pair under the store's lock, the sole
// path through which history is ever mutated, guaranteeing the (user,
// assistant) pairing invariant even under concurrent requests on the same
// conversation id (§5).
func (s *Store) AppendTurn(id, userText string, userAt time.Time, assistantText, domain string, assistantAt time.Time, responseTimeMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("convstore: unknown conversation %q", id)
	}
	c.AppendTurn(userText, userAt, assistantText, domain, assistantAt, responseTimeMs)
	return s.persistLocked(c)
}

// MarkBlocked records the blocking stage without touching message history.
func (s *Store) MarkBlocked(id, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.MarkBlocked(stage)
	}
}

// AtTurnLimit reports whether the conversation has already reached its
// configured maximum number of user turns.
func (s *Store) AtTurnLimit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return false
	}
	return c.AtTurnLimit(s.maxTurns)
}

// Snapshot returns a shallow copy of the conversation, safe for a caller to
// read without holding the store's lock (e.g. to compose a prompt's
// conversation-history section).
func (s *Store) Snapshot(id string) (entity.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return entity.Conversation{}, false
	}
	cp := *c
	cp.Messages = append([]entity.ConvMessage(nil), c.Messages...)
	cp.DomainsUsed = append([]string(nil), c.DomainsUsed...)
	return cp, true
}

// CleanupExpired sweeps the map for idle conversations, flushing each to
// disk before eviction so an idle timeout never silently drops an
// unpersisted turn (SPEC_FULL §C.8, carried from the Python original).
func (s *Store) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, c := range s.conversations {
		if c.Expired(s.idleTTL, now) {
			s.flushAndEvictLocked(id, c)
		}
	}
}

func (s *Store) flushAndEvictLocked(id string, c *entity.Conversation) {
	_ = s.persistLocked(c)
	delete(s.conversations, id)
}

// persistLocked writes the conversation to conversations/YYYY-MM-DD/conv_<id>.json
// using create-truncate-write with owner-only permissions, so the host
// process's umask cannot weaken them (§5, §6).
func (s *Store) persistLocked(c *entity.Conversation) error {
	if s.dir == "" {
		return nil
	}
	day := c.StartedAt.UTC().Format("2006-01-02")
	dir := filepath.Join(s.dir, day)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("conv_%s.json", c.ID))

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Load reads a persisted conversation back from disk, used by the analytics
// scanner and by tests asserting the round-trip property (§8).
func Load(path string) (*entity.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c entity.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
