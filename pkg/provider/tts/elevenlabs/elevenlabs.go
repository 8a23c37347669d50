// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "pcm_16000"
	providerName     = "elevenlabs"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format ("pcm_16000", "pcm_24000",
// "mp3_44100_128", ...).
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoiceSettings overrides stability and similarity boost (both 0..1).
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	settings     voiceSettings
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body of POST /v1/text-to-speech/{voice}.
type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize renders text in one request and returns the complete audio.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*types.SynthesizedAudio, error) {
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	payload, err := json.Marshal(synthesizeRequest{Text: text, ModelID: p.model, VoiceSettings: p.settings})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.baseURL, url.PathEscape(voiceID), url.QueryEscape(p.outputFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("elevenlabs: synthesize: empty audio")
	}

	format, rate := parseOutputFormat(p.outputFormat)
	out := &types.SynthesizedAudio{Data: data, Format: format, SampleRate: rate, VoiceID: voiceID}
	if format == types.FormatPCM16 {
		out.Channels = 1
	}
	return out, nil
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	return parseVoicesResponse(data)
}

// CloneVoice uploads WAV samples to POST /v1/voices/add (instant voice
// cloning) and returns the new voice.
func (p *Provider) CloneVoice(ctx context.Context, name string, samples [][]byte) (*types.VoiceProfile, error) {
	if name == "" {
		return nil, errors.New("elevenlabs: clone voice: name must not be empty")
	}
	if len(samples) == 0 {
		return nil, errors.New("elevenlabs: clone voice: at least one sample is required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return nil, fmt.Errorf("elevenlabs: write name field: %w", err)
	}
	for i, sample := range samples {
		fw, err := mw.CreateFormFile("files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: create form file: %w", err)
		}
		if _, err := fw.Write(sample); err != nil {
			return nil, fmt.Errorf("elevenlabs: write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	data, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: clone voice: %w", err)
	}
	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("elevenlabs: clone voice decode: %w", err)
	}
	if resp.VoiceID == "" {
		return nil, errors.New("elevenlabs: clone voice: response missing voice_id")
	}
	return &types.VoiceProfile{
		ID:       resp.VoiceID,
		Name:     name,
		Provider: providerName,
		Category: "cloned",
	}, nil
}

// do sends req with the API key header and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorDetail(data))
	}
	return data, nil
}

// errorDetail extracts detail.message from an ElevenLabs error body.
func errorDetail(data []byte) string {
	var e struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(data, &e) == nil && e.Detail.Message != "" {
		return e.Detail.Message
	}
	if len(data) > 256 {
		data = data[:256]
	}
	return strings.TrimSpace(string(data))
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		var meta map[string]string
		if len(v.Labels) > 0 {
			meta = make(map[string]string, len(v.Labels))
			for k, val := range v.Labels {
				meta[k] = val
			}
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: providerName,
			Category: v.Category,
			Metadata: meta,
		})
	}
	return profiles, nil
}

// parseOutputFormat maps an ElevenLabs output_format ("pcm_16000",
// "mp3_44100_128") to an audio format and sample rate.
func parseOutputFormat(f string) (types.AudioFormat, int) {
	parts := strings.Split(f, "_")
	rate := 0
	if len(parts) > 1 {
		rate, _ = strconv.Atoi(parts[1])
	}
	switch parts[0] {
	case "pcm":
		return types.FormatPCM16, rate
	case "mp3":
		return types.FormatMP3, rate
	}
	return types.AudioFormat(parts[0]), rate
}
