// Package contact persists messages the save-message tool collects on the
// visitor's behalf, one flat file per message, following the same
// create-truncate-write-then-0600 discipline as convstore (§5, §6).
package contact

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

// Store writes each contact message to <dir>/YYYY-MM-DD/<id>.json: one
// folder per day, with the message id alone as the file name (the date is
// not part of the file name). There is no in-memory index: the flat-file tree is the store, and the analytics
// package reads it back by scanning.
type Store struct {
	mu  sync.Mutex
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save assigns an id and timestamp if the caller hasn't already, then writes
// the message to disk under its own lock (contention here is rare enough
// that a single mutex is not a bottleneck, matching §9's guidance to keep
// every store behind one façade).
func (s *Store) Save(msg entity.ContactMessage) (entity.ContactMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return msg, nil
	}

	day := msg.Timestamp.UTC().Format("2006-01-02")
	dir := filepath.Join(s.dir, day)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return msg, err
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return msg, err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.json", msg.ID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return msg, err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return msg, err
	}
	return msg, nil
}

// Load reads a single contact message file back, used by the analytics
// scanner.
func Load(path string) (entity.ContactMessage, error) {
	var msg entity.ContactMessage
	data, err := os.ReadFile(path)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}
