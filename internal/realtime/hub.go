// Package realtime fans server events out to websocket clients grouped in rooms.
package realtime

import (
	"context"
	"sync"

	"classroom-quiz-service/internal/domain"
)

const (
	DefaultRoom = "quiz-room"

	EventLeaderboardUpdate = "leaderboard-update"
)

// Event is one message delivered to room subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub is an in-process room registry. Slow subscribers lose their oldest
// queued event rather than blocking the broadcaster.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[chan Event]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan Event]struct{}), buffer: 8}
}

// Subscribe joins room. The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(room string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[chan Event]struct{})
		h.rooms[room] = members
	}
	members[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		members, ok := h.rooms[room]
		if !ok {
			return
		}
		if _, ok := members[ch]; ok {
			delete(members, ch)
			close(ch)
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber of room and reports how many received it.
func (h *Hub) Broadcast(room string, ev Event) int {
	// Write lock: the drop-oldest dance below must not interleave with another broadcast.
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	for ch := range members {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return len(members)
}

// Size is the number of subscribers in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish implements app.Publisher by broadcasting to the default room.
func (h *Hub) Publish(_ context.Context, update domain.LeaderboardUpdate) error {
	h.Broadcast(DefaultRoom, Event{Type: EventLeaderboardUpdate, Payload: update})
	return nil
}
