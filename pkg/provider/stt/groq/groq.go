// Package groq provides an STT provider for Groq's hosted Whisper models.
//
// Groq exposes an OpenAI-compatible /audio/transcriptions endpoint, so the
// provider is built on the official openai-go client with a different base URL.
// Pointing WithBaseURL at https://api.openai.com/v1 (and choosing "whisper-1")
// makes it talk to OpenAI itself.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/types"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the Whisper variant used when none is configured.
	DefaultModel = "whisper-large-v3-turbo"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using an OpenAI-compatible transcription
// endpoint.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL. Defaults to [DefaultBaseURL].
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Defaults to [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient overrides the HTTP client. Takes precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("groq: apiKey must not be empty")
	}
	cfg := &config{baseURL: DefaultBaseURL, model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		// Retries are a policy decision made by the caller.
		option.WithMaxRetries(0),
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Transcribe uploads clip as audio.wav and returns the recognised text. The
// verbose JSON response carries the detected language and the duration.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip == nil {
		return stt.Transcript{}, errors.New("groq: nil clip")
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(clip.Reader(), clip.Filename(), clip.ContentType()),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if opts.Language != "" {
		params.Language = oai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("groq: transcribe: %w", err)
	}

	raw := resp.RawJSON()
	tr := stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: types.NormalizeLanguage(gjson.Get(raw, "language").String()),
		Duration: time.Duration(gjson.Get(raw, "duration").Float() * float64(time.Second)),
	}
	if tr.Language == "" {
		tr.Language = opts.Language
	}
	return tr, nil
}
