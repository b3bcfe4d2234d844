package conversation

import (
	"sync"

	"github.com/cinechat/cinechat/internal/dialog"
)

// SessionStore maps a channel identity (an inbound phone number) to the last
// known dialog session. Lock serializes the read-modify-write of one
// identity's turn so two concurrent messages from the same number cannot race
// the store, while turns for other identities proceed independently.
type SessionStore interface {
	Get(identity string) (*dialog.Conversation, bool)
	Put(identity string, session *dialog.Conversation)
	Lock(identity string) (unlock func())
}

// MemoryStore is a process-lifetime, in-memory SessionStore. No TTL and no
// capacity bound; entries live until the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*dialog.Conversation

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*dialog.Conversation),
		locks:    make(map[string]*sync.Mutex),
	}
}

var _ SessionStore = (*MemoryStore)(nil)

// Get returns the stored session for an identity.
func (s *MemoryStore) Get(identity string) (*dialog.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[identity]
	return session, ok
}

// Put stores the session for an identity, replacing any previous entry.
func (s *MemoryStore) Put(identity string, session *dialog.Conversation) {
	s.mu.Lock()
	s.sessions[identity] = session
	s.mu.Unlock()
}

// Lock acquires the per-identity mutex and returns its release func.
func (s *MemoryStore) Lock(identity string) func() {
	s.lockMu.Lock()
	m, ok := s.locks[identity]
	if !ok {
		m = &sync.Mutex{}
		s.locks[identity] = m
	}
	s.lockMu.Unlock()

	m.Lock()
	return m.Unlock
}
