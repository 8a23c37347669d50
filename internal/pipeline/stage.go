package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of a translation run. Stages only ever advance.
type Stage int

const (
	StageIdle Stage = iota
	StageTranscribing
	StageTranslating
	StageSynthesizing
	StageComplete
)

var stageInfo = [...]struct {
	name     string
	label    string
	progress int
}{
	StageIdle:         {"idle", "", 0},
	StageTranscribing: {"transcribing", "Transcribing speech...", 25},
	StageTranslating:  {"translating", "Translating text...", 50},
	StageSynthesizing: {"synthesizing", "Generating speech...", 75},
	StageComplete:     {"complete", "Complete", 100},
}

func (s Stage) valid() bool { return s >= StageIdle && s <= StageComplete }

// String returns the lower-case stage name.
func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageInfo[s].name
}

// Label is the human-readable progress message shown while s runs.
func (s Stage) Label() string {
	if !s.valid() {
		return ""
	}
	return stageInfo[s].label
}

// Progress is the completion percentage reported when s starts.
func (s Stage) Progress() int {
	if !s.valid() {
		return 0
	}
	return stageInfo[s].progress
}

// Status is a snapshot of the pipeline's progress.
type Status struct {
	RunID      string
	Stage      Stage
	Label      string
	Progress   int
	Processing bool
}

var (
	// ErrBusy is returned by Process while another run is in flight.
	ErrBusy = errors.New("pipeline: busy")

	// ErrNotConfigured means a required provider or request field is missing.
	ErrNotConfigured = errors.New("pipeline: not configured")

	// ErrTranscriptionFailed is the code of every transcription stage failure.
	ErrTranscriptionFailed = errors.New("pipeline: transcription failed")

	// ErrTranslationFailed is the code of every translation stage failure.
	ErrTranslationFailed = errors.New("pipeline: translation failed")

	// ErrSynthesisFailed is the code of a synthesis failure. It never fails a
	// run; the result is returned without audio.
	ErrSynthesisFailed = errors.New("pipeline: synthesis failed")

	// ErrNoSpeech is wrapped by transcription failures caused by a clip
	// without recognisable speech.
	ErrNoSpeech = errors.New("no speech detected")
)

// User-facing failure messages.
const (
	msgNotConfigured     = "API services not configured"
	msgNoTarget          = "No target language selected"
	msgNoSpeech          = "No speech detected in audio"
	msgTranscribeFailed  = "Transcription failed. Please try again."
	msgTranslationFailed = "Translation failed. Please try again."
	msgSynthesisFailed   = "Voice synthesis failed. Please try again."
)

// StageError describes a failed stage. errors.Is matches both Code and the
// wrapped cause.
type StageError struct {
	Stage Stage

	// Code is one of the pipeline sentinel errors.
	Code error

	// Message is a single human-readable sentence for display.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Stage, e.Message)
}

// Is reports whether target is e's code.
func (e *StageError) Is(target error) bool { return target == e.Code }

func (e *StageError) Unwrap() error { return e.Err }

// UserMessage returns the display message of err when it is a *StageError,
// and a generic message otherwise.
func UserMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if errors.Is(err, ErrBusy) {
		return "Please wait for current processing to finish."
	}
	return msgTranslationFailed
}
