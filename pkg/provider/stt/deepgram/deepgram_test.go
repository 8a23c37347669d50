package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
)

// ---- URL construction ----

func TestBuildURL_Defaults(t *testing.T) {
	p, _ := New("test-key")
	raw, err := p.buildURL(stt.Options{Language: "es"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "path", "/v1/listen", u.Path)

	q := u.Query()
	assertEqual(t, "model", defaultModel, q.Get("model"))
	assertEqual(t, "language", "es", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "detect_language", "", q.Get("detect_language"))
}

func TestBuildURL_AutoDetect(t *testing.T) {
	p, _ := New("test-key", WithModel("base"))
	raw, _ := p.buildURL(stt.Options{})
	u, _ := url.Parse(raw)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "", q.Get("language"))
	assertEqual(t, "detect_language", "true", q.Get("detect_language"))
}

func TestBuildURL_Keyterms(t *testing.T) {
	p, _ := New("test-key")
	raw, _ := p.buildURL(stt.Options{Prompt: "Eldrinax, Thornwall ,,"})
	u, _ := url.Parse(raw)

	got := u.Query()["keyterm"]
	if len(got) != 2 || got[0] != "Eldrinax" || got[1] != "Thornwall" {
		t.Errorf("keyterm = %v", got)
	}
}

// ---- Response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	raw := []byte(`{
		"metadata": {"duration": 2.25},
		"results": {
			"channels": [{
				"detected_language": "ES",
				"alternatives": [{"transcript": " Hola mundo ", "confidence": 0.91}]
			}]
		}
	}`)

	tr, err := parseDeepgramResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEqual(t, "text", "Hola mundo", tr.Text)
	assertEqual(t, "language", "es", tr.Language)
	if tr.Confidence != 0.91 {
		t.Errorf("confidence = %f, want 0.91", tr.Confidence)
	}
	if tr.Duration != 2250*time.Millisecond {
		t.Errorf("duration = %v", tr.Duration)
	}
}

func TestParseDeepgramResponse_Empty(t *testing.T) {
	for name, raw := range map[string]string{
		"no channels":     `{"results":{"channels":[]}}`,
		"no alternatives": `{"results":{"channels":[{"alternatives":[]}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			tr, err := parseDeepgramResponse([]byte(raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tr.Text != "" {
				t.Errorf("text = %q, want empty", tr.Text)
			}
		})
	}
}

func TestParseDeepgramResponse_InvalidJSON(t *testing.T) {
	if _, err := parseDeepgramResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- HTTP round trip ----

func TestTranscribe_RoundTrip(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"Hello","confidence":0.8}]}]}}`))
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	start := time.Now()
	clip := audio.NewClip(make([]byte, 320), audio.DefaultFormat, start, start.Add(10*time.Millisecond))

	tr, err := p.Transcribe(context.Background(), clip, stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "auth", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/wav", gotType)
	assertEqual(t, "text", "Hello", tr.Text)
	assertEqual(t, "language", "en", tr.Language)
	if len(gotBody) != clip.Size() {
		t.Errorf("body = %d bytes, want %d", len(gotBody), clip.Size())
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_code":"INVALID_AUTH"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad", WithBaseURL(srv.URL))
	start := time.Now()
	clip := audio.NewClip(make([]byte, 320), audio.DefaultFormat, start, start)
	if _, err := p.Transcribe(context.Background(), clip, stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "baseURL", defaultBaseURL, p.baseURL)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
