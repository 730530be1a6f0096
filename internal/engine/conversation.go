package engine

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Conversation holds the prior turns of one chat session. It lives in
// memory only: sessions do not survive a process restart, and a question
// answered after a restart sees an empty history.
//
// A Conversation is safe for concurrent use; turns are append-only.
type Conversation struct {
	mu   sync.Mutex
	msgs []*schema.Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// appendTurn records one completed (question, answer) exchange.
func (c *Conversation) appendTurn(question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs,
		schema.UserMessage(question),
		schema.AssistantMessage(answer, nil),
	)
}

// Messages returns a snapshot of the conversation history, oldest first.
// The returned slice is a copy; callers may not mutate the stored turns.
func (c *Conversation) Messages() []*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*schema.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of stored messages (two per completed turn).
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}
