package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/polyglot/pkg/types"
)

// MessageType distinguishes relay messages.
type MessageType string

const (
	TypeText         MessageType = "text"
	TypeSessionEnded MessageType = "session_ended"
)

// Sender is the mode of the participant that published a message.
type Sender string

const (
	SenderHost Sender = "host"
	SenderJoin Sender = "join"
	SenderSolo Sender = "solo"
)

// Payload is the body of a relay message. Timestamps are Unix milliseconds.
type Payload struct {
	Transcript   string `json:"transcript,omitempty"`
	Translation  string `json:"translation,omitempty"`
	FromLanguage string `json:"fromLanguage,omitempty"`
	ToLanguage   string `json:"toLanguage,omitempty"`
	RoomCode     string `json:"roomCode,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Message is the wire format shared by every transport.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   *Payload    `json:"payload,omitempty"`
	Sender    Sender      `json:"sender"`
	Timestamp int64       `json:"timestamp"`

	// ClientID identifies the publishing connection; channels use it to drop
	// their own echoes. Set by the transport.
	ClientID string `json:"clientId,omitempty"`
}

// Time returns the message timestamp.
func (m Message) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// NewTextMessage wraps a translation result for publishing.
func NewTextMessage(res *types.TranslationResult, sender Sender, now time.Time) Message {
	return Message{
		ID:   uuid.NewString(),
		Type: TypeText,
		Payload: &Payload{
			Transcript:   res.OriginalText,
			Translation:  res.TranslatedText,
			FromLanguage: res.FromLanguage,
			ToLanguage:   res.ToLanguage,
			Timestamp:    res.Timestamp.UnixMilli(),
		},
		Sender:    sender,
		Timestamp: now.UnixMilli(),
	}
}

// NewSessionEnded announces that the host closed room.
func NewSessionEnded(room string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      TypeSessionEnded,
		Payload:   &Payload{RoomCode: room, Timestamp: now.UnixMilli()},
		Sender:    SenderHost,
		Timestamp: now.UnixMilli(),
	}
}
