package stream

import (
	"context"
	"sync"

	"github.com/AltairaLabs/convostream/runtime/auth"
)

// Factory builds the client for a conversation.
type Factory func(ctx context.Context, conversationID string) (*Client, error)

// Slot holds at most one client: the conversation currently in view.
// Switching conversations closes the prior client before the next one is
// built.
type Slot struct {
	factory Factory

	mu      sync.Mutex
	current *Client
}

// NewSlot creates an empty slot.
func NewSlot(factory Factory) *Slot {
	return &Slot{factory: factory}
}

// Current returns the client in the slot, or nil.
func (s *Slot) Current() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Switch makes conversationID the slot's conversation and opens its channel
// with cred. Switching to the conversation already in view is a no-op while
// its client is live. The returned client is in the slot even when Open
// fails, so its Snapshot carries the error. The slot is not locked during
// the handshake, so Leave or another Switch can abandon it.
func (s *Slot) Switch(ctx context.Context, conversationID string, cred auth.Credential) (*Client, error) {
	s.mu.Lock()
	if s.current != nil {
		if s.current.ConversationID() == conversationID && !s.current.Snapshot().State.Terminal() {
			current := s.current
			s.mu.Unlock()
			return current, nil
		}
		_ = s.current.Close()
		s.current = nil
	}

	client, err := s.factory(ctx, conversationID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.current = client
	s.mu.Unlock()

	return client, client.Open(ctx, cred)
}

// Leave closes the slot's client unconditionally.
func (s *Slot) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		_ = s.current.Close()
		s.current = nil
	}
}
