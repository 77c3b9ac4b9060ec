package chat

import (
	"context"
	"sync"
)

// Hub tracks open conversations so the process can tear them all down on
// shutdown.
type Hub struct {
	orch      *Orchestrator
	queueSize int

	mu    sync.Mutex
	convs map[string]*Conversation
}

func NewHub(orch *Orchestrator, queueSize int) *Hub {
	return &Hub{orch: orch, queueSize: queueSize, convs: make(map[string]*Conversation)}
}

// Open starts a conversation. Closing it removes it from the hub.
func (h *Hub) Open() *Conversation {
	c := NewConversation(h.orch, h.queueSize)
	c.onClose = h.remove
	h.mu.Lock()
	h.convs[c.ID()] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.convs)
}

// Drain closes every open conversation, returning early with ctx.Err() if
// ctx ends first.
func (h *Hub) Drain(ctx context.Context) error {
	h.mu.Lock()
	convs := make([]*Conversation, 0, len(h.convs))
	for _, c := range h.convs {
		convs = append(convs, c)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, c := range convs {
			wg.Add(1)
			go func(c *Conversation) {
				defer wg.Done()
				c.Close()
			}(c)
		}
		wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) remove(c *Conversation) {
	h.mu.Lock()
	delete(h.convs, c.ID())
	h.mu.Unlock()
}
