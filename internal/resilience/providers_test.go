package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/llm"
	llmmock "github.com/MrWong99/polyglot/pkg/provider/llm/mock"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	sttmock "github.com/MrWong99/polyglot/pkg/provider/stt/mock"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	translatemock "github.com/MrWong99/polyglot/pkg/provider/translate/mock"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	ttsmock "github.com/MrWong99/polyglot/pkg/provider/tts/mock"
	"github.com/MrWong99/polyglot/pkg/types"
)

// plainTranslator has no detection or language list.
type plainTranslator struct{}

func (plainTranslator) Translate(context.Context, string, string, string) (string, error) {
	return "plain", nil
}

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errors.New("groq down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "Hola", Language: "es"}}

	fb := NewSTTFallback(FallbackConfig{},
		Member[stt.Provider]{"groq", primary},
		Member[stt.Provider]{"whisper", secondary})

	tr, err := fb.Transcribe(context.Background(), &audio.Clip{}, stt.Options{Language: "es"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "Hola" {
		t.Errorf("text = %q, want Hola", tr.Text)
	}
	if len(primary.Calls) != 1 || len(secondary.Calls) != 1 {
		t.Errorf("calls primary=%d secondary=%d, want 1/1", len(primary.Calls), len(secondary.Calls))
	}
	if secondary.Calls[0].Opts.Language != "es" {
		t.Errorf("options not forwarded: %+v", secondary.Calls[0].Opts)
	}
	if names := fb.Names(); len(names) != 2 {
		t.Errorf("Names() = %v", names)
	}
}

func TestTranslateFallback(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{Err: errors.New("deepl quota"), DetectErr: errors.New("deepl quota")}
	secondary := &translatemock.Provider{Result: "Hello", Detected: "es"}

	fb := NewTranslateFallback(FallbackConfig{},
		Member[translate.Provider]{"deepl", primary},
		Member[translate.Provider]{"llm", secondary})

	got, err := fb.Translate(context.Background(), "Hola", "en", "es")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello" {
		t.Errorf("Translate = %q", got)
	}

	lang, err := fb.DetectLanguage(context.Background(), "Hola")
	if err != nil {
		t.Fatal(err)
	}
	if lang != "es" {
		t.Errorf("DetectLanguage = %q", lang)
	}
}

func TestTranslateFallback_DetectSkipsIncapable(t *testing.T) {
	t.Parallel()
	detector := &translatemock.Provider{Detected: "fr"}
	fb := NewTranslateFallback(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}},
		Member[translate.Provider]{"plain", plainTranslator{}},
		Member[translate.Provider]{"mock", detector})

	lang, err := fb.DetectLanguage(context.Background(), "Bonjour")
	if err != nil {
		t.Fatal(err)
	}
	if lang != "fr" {
		t.Errorf("DetectLanguage = %q, want fr", lang)
	}
	if st := fb.Breaker("plain").State(); st != StateClosed {
		t.Errorf("plain breaker = %v, skipping must not count as failure", st)
	}

	only := NewTranslateFallback(FallbackConfig{}, Member[translate.Provider]{"plain", plainTranslator{}})
	if _, err := only.DetectLanguage(context.Background(), "x"); !errors.Is(err, ErrNoCapableProvider) {
		t.Errorf("error = %v, want ErrNoCapableProvider", err)
	}
	langs, err := only.SupportedLanguages(context.Background())
	if err != nil || len(langs) != len(types.Languages) {
		t.Errorf("SupportedLanguages = %d langs, %v; want the catalogue", len(langs), err)
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{
		SynthesizeErr: errors.New("elevenlabs 503"),
		Voices:        []types.VoiceProfile{{ID: "v1", Name: "Ana"}},
	}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(FallbackConfig{},
		Member[tts.Provider]{"elevenlabs", primary},
		Member[tts.Provider]{"coqui", secondary})

	out, err := fb.Synthesize(context.Background(), "Hello", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if out.VoiceID != "v1" {
		t.Errorf("VoiceID = %q", out.VoiceID)
	}
	if secondary.CallCount() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.CallCount())
	}

	voices, err := fb.ListVoices(context.Background())
	if err != nil || len(voices) != 1 {
		t.Errorf("ListVoices = %v, %v", voices, err)
	}
	if secondary.ListCount() != 0 {
		t.Error("ListVoices must target the primary only")
	}

	v, err := fb.CloneVoice(context.Background(), "Me", [][]byte{{1}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Me" {
		t.Errorf("cloned voice = %+v", v)
	}
	if len(primary.Clones()) != 1 || len(secondary.Clones()) != 0 {
		t.Error("CloneVoice must target the primary only")
	}
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello"}}

	fb := NewLLMFallback(FallbackConfig{},
		Member[llm.Provider]{"openai", primary},
		Member[llm.Provider]{"ollama", secondary})

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d", primary.CallCount(), secondary.CallCount())
	}
}

func TestLLMFallback_OpenBreakerSkipped(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: llm.ErrTruncated}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello"}}

	fb := NewLLMFallback(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}},
		Member[llm.Provider]{"openai", primary},
		Member[llm.Provider]{"ollama", secondary})

	req := llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "Hola"}}}
	for range 3 {
		if _, err := fb.Complete(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open after first failure)", primary.CallCount())
	}
	if fb.Breaker("openai").State() != StateOpen {
		t.Errorf("openai breaker = %v, want open", fb.Breaker("openai").State())
	}
}
