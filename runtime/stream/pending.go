package stream

import "sync"

// PendingPrompts holds the first prompt of newly created conversations until
// a client opens a channel for them. Each prompt is consumed once.
type PendingPrompts struct {
	mu      sync.Mutex
	prompts map[string]string
}

// NewPendingPrompts creates an empty holder.
func NewPendingPrompts() *PendingPrompts {
	return &PendingPrompts{prompts: make(map[string]string)}
}

// Put records prompt for conversationID, replacing any earlier one.
func (p *PendingPrompts) Put(conversationID, prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts[conversationID] = prompt
}

// Take removes and returns the prompt for conversationID.
func (p *PendingPrompts) Take(conversationID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt, ok := p.prompts[conversationID]
	delete(p.prompts, conversationID)
	return prompt, ok
}
