package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the fake server received.
type inferenceRequest struct {
	fields   map[string]string
	filename string
	wav      []byte
}

// newMockServer creates a test server that responds to POST /inference with
// the given JSON body and records every request it receives.
func newMockServer(t *testing.T, response map[string]any) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		if f, hdr, err := r.FormFile("file"); err == nil {
			got.filename = hdr.Filename
			got.wav, _ = io.ReadAll(f)
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, got)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

func testClip() *audio.Clip {
	start := time.Now()
	return audio.NewClip(make([]byte, 3200), audio.DefaultFormat, start, start.Add(100*time.Millisecond))
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_SendsClipAndLanguage(t *testing.T) {
	t.Parallel()

	srv, requests := newMockServer(t, map[string]any{"text": "  Hola, ¿cómo estás?  "})
	p, _ := whisper.New(srv.URL+"/", whisper.WithModel("small"))

	clip := testClip()
	tr, err := p.Transcribe(context.Background(), clip, stt.Options{Language: "es", Prompt: "Eldrinax"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hola, ¿cómo estás?" {
		t.Errorf("Text = %q", tr.Text)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	got := reqs[0]
	if got.fields["language"] != "es" || got.fields["model"] != "small" || got.fields["prompt"] != "Eldrinax" {
		t.Errorf("fields = %v", got.fields)
	}
	if _, ok := got.fields["temperature"]; ok {
		t.Error("temperature sent without WithTemperature")
	}
	if got.filename != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", got.filename)
	}
	if string(got.wav) != string(clip.Bytes()) {
		t.Error("uploaded bytes differ from clip")
	}
}

func TestTranscribe_AutoDetect(t *testing.T) {
	t.Parallel()

	srv, requests := newMockServer(t, map[string]any{
		"text":              "Bonjour",
		"detected_language": "french",
		"duration":          1.5,
	})
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), testClip(), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "fr" {
		t.Errorf("Language = %q, want fr", tr.Language)
	}
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", tr.Duration)
	}
	if lang := requests()[0].fields["language"]; lang != "auto" {
		t.Errorf("language field = %q, want auto", lang)
	}
}

func TestTranscribe_Segments(t *testing.T) {
	t.Parallel()

	srv, requests := newMockServer(t, map[string]any{
		"text":     "uno dos",
		"language": "es",
		"segments": []map[string]any{
			{"text": "uno", "end": 0.8, "avg_logprob": 0.0},
			{"text": "dos", "end": 2.25, "avg_logprob": math.Log(0.5)},
		},
	})
	p, _ := whisper.New(srv.URL, whisper.WithTemperature(0.2))

	tr, err := p.Transcribe(context.Background(), testClip(), stt.Options{Language: "es"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if math.Abs(tr.Confidence-0.75) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.75", tr.Confidence)
	}
	if tr.Duration != 2250*time.Millisecond {
		t.Errorf("Duration = %v, want last segment end 2.25s", tr.Duration)
	}
	if got := requests()[0].fields["temperature"]; got != "0.2" {
		t.Errorf("temperature field = %q, want 0.2", got)
	}
}

func TestTranscribe_EmptyTextIsNotAnError(t *testing.T) {
	t.Parallel()

	srv, _ := newMockServer(t, map[string]any{"text": "   "})
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), testClip(), stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), testClip(), stt.Options{})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want HTTP 500 error", err)
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), testClip(), stt.Options{}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv, requests := newMockServer(t, map[string]any{"text": "x"})
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, testClip(), stt.Options{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n := len(requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestTranscribe_NilClip(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://localhost:1")
	if _, err := p.Transcribe(context.Background(), nil, stt.Options{}); err == nil {
		t.Fatal("expected error for nil clip")
	}
}
