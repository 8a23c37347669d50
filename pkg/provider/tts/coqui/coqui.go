// Package coqui provides a tts.Provider for a locally running Coqui server.
//
// Two server flavours are supported:
//
//   - APIModeStandard (default) targets the stock Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu): GET /api/tts synthesizes and GET /details
//     describes the loaded model and its speakers.
//   - APIModeXTTS targets the XTTS v2 API server: POST /tts_to_audio/
//     synthesizes, GET /studio_speakers lists voices and POST /clone_speaker
//     creates new ones.
//
// Both reply with a WAV file; Synthesize returns its raw PCM.
//
//	p, err := coqui.New("http://localhost:8002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithAPIMode(coqui.APIModeXTTS),
//	)
//	out, err := p.Synthesize(ctx, "Hello", "Ana Florence")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const providerName = "coqui"

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeXTTS     APIMode = "xtts"
	APIModeStandard APIMode = "standard"
)

// server is one Coqui API flavour.
type server interface {
	synthesisRequest(ctx context.Context, p *Provider, text, voiceID string) (*http.Request, error)
	voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error)
	clone(ctx context.Context, p *Provider, name string, samples [][]byte) (*types.VoiceProfile, error)
}

var servers = map[APIMode]server{
	APIModeStandard: standardServer{},
	APIModeXTTS:     xttsServer{},
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language sent with every synthesis request, normally
// the translation target. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Default 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server flavour.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithOutputSampleRate resamples output to rate. Zero keeps the model's
// native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// Provider synthesizes speech through a Coqui server.
type Provider struct {
	serverURL  string
	language   string
	apiMode    APIMode
	outputRate int
	httpClient *http.Client
	server     server
}

// New returns a Provider for the server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   "en",
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	srv, ok := servers[p.apiMode]
	if !ok {
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	p.server = srv
	return p, nil
}

// Synthesize renders text and returns 16-bit PCM. XTTS mode requires a
// voiceID; standard mode accepts an empty one for single-speaker models.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*types.SynthesizedAudio, error) {
	req, err := p.server.synthesisRequest(ctx, p, text, voiceID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	wav, err := p.do(req)
	if err != nil {
		return nil, err
	}
	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode WAV response: %w", err)
	}
	if p.outputRate > 0 {
		want := audio.Format{SampleRate: p.outputRate, Channels: format.Channels}
		pcm, format = audio.Convert(pcm, format, want), want
	}
	return &types.SynthesizedAudio{
		Data:       pcm,
		Format:     types.FormatPCM16,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		VoiceID:    voiceID,
	}, nil
}

// ListVoices returns the server's voice catalogue sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return p.server.voices(ctx, p)
}

// CloneVoice creates a speaker from WAV samples. Only XTTS servers support
// it; standard mode returns tts.ErrCloneUnsupported.
func (p *Provider) CloneVoice(ctx context.Context, name string, samples [][]byte) (*types.VoiceProfile, error) {
	return p.server.clone(ctx, p, name, samples)
}

// get fetches path and returns the body.
func (p *Provider) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return p.do(req)
}

// do sends req and returns the body of a 200 reply.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body[:min(len(body), 256)]))
		return nil, fmt.Errorf("coqui: %s %s returned status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	return body, nil
}
