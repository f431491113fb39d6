package memory

import (
	"context"
	"sync"
)

// Backend is an in-memory slots.Backend. Updates are serialized by one mutex.
type Backend struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewBackend() *Backend {
	return &Backend{slots: make(map[string][]byte)}
}

func (b *Backend) Load(_ context.Context, slot string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.slots[slot]), nil
}

func (b *Backend) Update(_ context.Context, slot string, fn func([]byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := fn(clone(b.slots[slot]))
	if err != nil {
		return err
	}
	b.slots[slot] = next
	return nil
}

func (b *Backend) Delete(_ context.Context, slots ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, slot := range slots {
		delete(b.slots, slot)
	}
	return nil
}

func clone(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
