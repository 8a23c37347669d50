// Package relay carries translation results between the participants of a
// room.
//
// A host opens a room under a short [NewRoomCode] and publishes every
// translated utterance to it; joiners subscribe to the same room and receive
// them. Rooms map to the pub/sub channel [ChannelName]. Two transports are
// provided: [Hub], an in-process broker used by tests and by the relay
// server, and [WebSocket], a client for a remote [Server].
package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
)

var (
	// ErrInvalidRoom is returned for malformed room codes.
	ErrInvalidRoom = errors.New("relay: invalid room code")

	// ErrClosed is returned when publishing on a closed channel.
	ErrClosed = errors.New("relay: channel closed")
)

// RoomCodeLength is the number of characters in a room code.
const RoomCodeLength = 6

const roomAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Relay connects to rooms.
type Relay interface {
	// Join subscribes to room and returns the channel for it.
	Join(ctx context.Context, room string) (Channel, error)
}

// Channel is a joined room. Messages published by this channel are not
// delivered back to it.
type Channel interface {
	// Publish sends m to every other member of the room.
	Publish(ctx context.Context, m Message) error

	// Messages delivers messages from other members. It is closed when the
	// channel is closed or the transport fails.
	Messages() <-chan Message

	// Close leaves the room. Idempotent.
	Close() error
}

// NewRoomCode returns a random six-character upper-case base36 code.
func NewRoomCode() string {
	b := make([]byte, RoomCodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = roomAlphabet[int(b[i])%len(roomAlphabet)]
	}
	return string(b)
}

// NormalizeRoomCode trims and upper-cases code and validates it.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return "", ErrInvalidRoom
	}
	for _, r := range code {
		if !strings.ContainsRune(roomAlphabet, r) {
			return "", ErrInvalidRoom
		}
	}
	return code, nil
}

// ChannelName is the pub/sub channel of room.
func ChannelName(room string) string {
	return "translation-" + room
}
