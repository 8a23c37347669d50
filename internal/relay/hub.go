package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// memberBuffer is the per-member delivery queue. A member that falls further
// behind loses messages.
const memberBuffer = 64

var _ Relay = (*Hub)(nil)

// Hub is an in-process broker. The zero value is ready to use.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*hubChannel]struct{}
}

// Join validates room and subscribes a new member to it.
func (h *Hub) Join(_ context.Context, room string) (Channel, error) {
	room, err := NormalizeRoomCode(room)
	if err != nil {
		return nil, err
	}
	c := &hubChannel{
		hub:  h,
		room: room,
		id:   uuid.NewString(),
		out:  make(chan Message, memberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms == nil {
		h.rooms = make(map[string]map[*hubChannel]struct{})
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*hubChannel]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	slog.Debug("relay: member joined", "channel", ChannelName(room), "members", len(members))
	return c, nil
}

// Members returns the number of members in room.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) broadcast(from *hubChannel, m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[from.room] {
		if c == from || c.id == m.ClientID {
			continue
		}
		select {
		case c.out <- m:
		default:
			slog.Warn("relay: member behind, dropping message", "channel", ChannelName(c.room), "message_id", m.ID)
		}
	}
}

func (h *Hub) leave(c *hubChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[c.room]
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.out)
}

type hubChannel struct {
	hub  *Hub
	room string
	id   string
	out  chan Message

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (c *hubChannel) Publish(_ context.Context, m Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if m.ClientID == "" {
		m.ClientID = c.id
	}
	c.hub.broadcast(c, m)
	return nil
}

func (c *hubChannel) Messages() <-chan Message { return c.out }

func (c *hubChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.hub.leave(c)
	})
	return nil
}

// NewMemoryHub returns an empty in-process hub.
func NewMemoryHub() *Hub { return &Hub{} }
