// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"sync"
)

// Bus fans status changes out to in-process subscribers keyed by workflow
// id. Publishing never blocks: a subscriber whose buffer is full misses the
// change.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan StatusChange
	seq    uint64
	buffer int
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		subs:   make(map[string]map[uint64]chan StatusChange),
		buffer: buffer,
	}
}

func (b *Bus) Notify(_ context.Context, change StatusChange) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[change.WorkflowID] {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of changes for workflowID and a cancel func
// that closes it. Cancel is safe to call more than once.
func (b *Bus) Subscribe(workflowID string) (<-chan StatusChange, func()) {
	ch := make(chan StatusChange, b.buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[workflowID]; !ok {
		b.subs[workflowID] = make(map[uint64]chan StatusChange)
	}
	b.subs[workflowID][id] = ch
	b.mu.Unlock()

	return ch, func() { b.remove(workflowID, id) }
}

// Subscribers reports how many listeners are attached to workflowID.
func (b *Bus) Subscribers(workflowID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[workflowID])
}

func (b *Bus) remove(workflowID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	listeners, ok := b.subs[workflowID]
	if !ok {
		return
	}
	if ch, exists := listeners[id]; exists {
		delete(listeners, id)
		close(ch)
	}
	if len(listeners) == 0 {
		delete(b.subs, workflowID)
	}
}
