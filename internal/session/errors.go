package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/recorder"
	"github.com/MrWong99/polyglot/pkg/audio"
)

var (
	// ErrProcessing is returned by ToggleMicrophone while a run is in flight.
	ErrProcessing = errors.New("session: processing in progress")

	// ErrInvalidRoom means a join was attempted without a valid room code.
	ErrInvalidRoom = errors.New("session: invalid room code")

	// ErrInvalidMode is returned for an unknown session mode.
	ErrInvalidMode = errors.New("session: invalid mode")

	// ErrActive is returned by Start while a session is running.
	ErrActive = errors.New("session: already started")

	// ErrNotActive is returned by operations that need a running session.
	ErrNotActive = errors.New("session: not started")

	// ErrNoRelay means a host or join session was started without a relay.
	ErrNoRelay = errors.New("session: relay not configured")
)

// User-facing messages.
const (
	MessageMicrophoneDenied = "Microphone access denied. Please allow microphone access to use voice features."
	MessageProcessing       = "Please wait for current processing to finish."
	MessageTooShort         = "Recording too short."
	MessageNetwork          = "Network connection failed. Please check your internet connection."
)

// UserMessage maps err to the sentence shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrProcessing), errors.Is(err, pipeline.ErrBusy):
		return MessageProcessing
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return MessageMicrophoneDenied
	case errors.Is(err, recorder.ErrTooShort):
		var short *recorder.TooShortError
		if errors.As(err, &short) && short.Min > 0 {
			return fmt.Sprintf("%s Please speak for at least %s.", MessageTooShort, spokenDuration(short.Min))
		}
		return MessageTooShort
	case errors.Is(err, ErrReconnectFailed), errors.Is(err, ErrNoRelay):
		return MessageNetwork
	}
	return pipeline.UserMessage(err)
}

// spokenDuration renders whole seconds as "1 second" or "60 seconds" and
// anything finer in Go duration notation.
func spokenDuration(d time.Duration) string {
	if d%time.Second != 0 {
		return d.String()
	}
	if n := int(d / time.Second); n != 1 {
		return fmt.Sprintf("%d seconds", n)
	}
	return "1 second"
}
