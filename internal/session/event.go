package session

import (
	"fmt"

	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/types"
)

// EventType identifies the payload of an [Event].
type EventType int

const (
	// EventState: the detector changed state.
	EventState EventType = iota
	// EventLevel: a microphone loudness sample.
	EventLevel
	// EventProgress: the pipeline advanced a stage or reset.
	EventProgress
	// EventResult: a local utterance was translated.
	EventResult
	// EventRemote: a message from another room member.
	EventRemote
	// EventError: a failure with a user-facing message.
	EventError
	// EventSessionEnded: the session is over.
	EventSessionEnded
	// EventReconnecting: the relay dropped and a rejoin attempt is starting.
	EventReconnecting
)

var eventNames = [...]string{"state", "level", "progress", "result", "remote", "error", "session_ended", "reconnecting"}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is one UI notification. Only the fields matching Type are set.
type Event struct {
	Type EventType

	State    detector.State
	Level    audio.Level
	Progress pipeline.Status
	Result   *types.TranslationResult
	Remote   *relay.Message

	// Err and Message describe an EventError.
	Err     error
	Message string

	// Room is set on EventSessionEnded and EventReconnecting.
	Room string

	// Attempt numbers an EventReconnecting, from 2.
	Attempt int
}
