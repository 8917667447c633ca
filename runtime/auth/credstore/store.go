// Package credstore persists the signed-in credential.
//
// Three backends implement auth.Store: an in-process MemoryStore, a YAML
// FileStore for the CLI, and a RedisStore for hosts that share a credential
// between processes.
package credstore

import (
	"context"
	"sync"

	"github.com/AltairaLabs/convostream/runtime/auth"
)

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *auth.Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements auth.Store.
func (s *MemoryStore) Load(_ context.Context) (auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return auth.Credential{}, auth.ErrNoCredential
	}
	return *s.cred, nil
}

// Save implements auth.Store.
func (s *MemoryStore) Save(_ context.Context, cred auth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
	return nil
}

// Delete implements auth.Store.
func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
