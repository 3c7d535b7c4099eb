package otp

import (
	"sync"
	"time"
)

// Entry is a live one-time code for an email address. Only a hash of the
// code is kept; the cleartext exists solely inside the outbound email.
type Entry struct {
	CodeHash  []byte
	ExpiresAt time.Time
}

// Store keeps at most one live entry per email. Implementations make no
// persistence guarantee: the contract is process-duration only, and entries
// are removed lazily on verify or expiry rather than swept by a timer.
type Store interface {
	Put(email string, entry Entry)
	Get(email string) (Entry, bool)
	Delete(email string)
}

// MemoryStore is the in-process Store used in production and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Put stores the entry, replacing and thereby invalidating any prior code
// for the same email.
func (s *MemoryStore) Put(email string, entry Entry) {
	s.mu.Lock()
	s.entries[email] = entry
	s.mu.Unlock()
}

// Get returns the live entry for the email, if any.
func (s *MemoryStore) Get(email string) (Entry, bool) {
	s.mu.Lock()
	entry, ok := s.entries[email]
	s.mu.Unlock()
	return entry, ok
}

// Delete removes the entry for the email.
func (s *MemoryStore) Delete(email string) {
	s.mu.Lock()
	delete(s.entries, email)
	s.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
