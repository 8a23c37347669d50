package pipeline

import (
	"errors"
	"testing"
)

func TestStage_Metadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage    Stage
		name     string
		label    string
		progress int
	}{
		{StageIdle, "idle", "", 0},
		{StageTranscribing, "transcribing", "Transcribing speech...", 25},
		{StageTranslating, "translating", "Translating text...", 50},
		{StageSynthesizing, "synthesizing", "Generating speech...", 75},
		{StageComplete, "complete", "Complete", 100},
		{Stage(42), "stage(42)", "", 0},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.stage.Label(); got != tt.label {
			t.Errorf("%s Label() = %q, want %q", tt.name, got, tt.label)
		}
		if got := tt.stage.Progress(); got != tt.progress {
			t.Errorf("%s Progress() = %d, want %d", tt.name, got, tt.progress)
		}
	}
}

func TestStageError(t *testing.T) {
	t.Parallel()

	cause := errors.New("timeout")
	err := error(&StageError{Stage: StageTranslating, Code: ErrTranslationFailed, Message: msgTranslationFailed, Err: cause})

	if !errors.Is(err, ErrTranslationFailed) || !errors.Is(err, cause) {
		t.Error("errors.Is should match both code and cause")
	}
	if errors.Is(err, ErrTranscriptionFailed) {
		t.Error("errors.Is matched the wrong code")
	}
	if got, want := err.Error(), "pipeline: translating: Translation failed. Please try again.: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if UserMessage(ErrBusy) != "Please wait for current processing to finish." {
		t.Errorf("busy message = %q", UserMessage(ErrBusy))
	}
	if UserMessage(errors.New("x")) != msgTranslationFailed {
		t.Error("unknown errors should map to the generic message")
	}
}

func TestVoiceSelection_Resolve(t *testing.T) {
	t.Parallel()

	if got := (VoiceSelection{Selected: "  "}).Resolve(); got != "" {
		t.Errorf("blank selection resolved to %q", got)
	}
	if got := (VoiceSelection{Selected: " a ", Fallbacks: []string{"b"}}).Resolve(); got != "a" {
		t.Errorf("Resolve = %q, want a", got)
	}
}
