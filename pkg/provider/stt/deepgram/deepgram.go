// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-3"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
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

// Provider implements stt.Provider backed by the Deepgram /v1/listen API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe posts the WAV clip to Deepgram. Glossary terms in opts.Prompt
// (comma separated) are forwarded as keyterms.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip == nil {
		return stt.Transcript{}, errors.New("deepgram: nil clip")
	}
	endpoint, err := p.buildURL(opts)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, clip.Reader())
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", clip.ContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	tr, err := parseDeepgramResponse(data)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	if tr.Language == "" {
		tr.Language = opts.Language
	}
	return tr, nil
}

// buildURL constructs the /v1/listen endpoint URL for the given options.
func (p *Provider) buildURL(opts stt.Options) (string, error) {
	u, err := url.Parse(p.baseURL + "/v1/listen")
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	} else {
		q.Set("detect_language", "true")
	}
	for _, term := range strings.Split(opts.Prompt, ",") {
		if term = strings.TrimSpace(term); term != "" {
			q.Add("keyterm", term)
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse mirrors the fields of a pre-recorded transcription result
// that the provider consumes.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse extracts the best alternative of the first channel.
// A response without channels or alternatives yields an empty transcript.
func parseDeepgramResponse(data []byte) (stt.Transcript, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, fmt.Errorf("parse response: %w", err)
	}

	tr := stt.Transcript{
		Duration: time.Duration(resp.Metadata.Duration * float64(time.Second)),
	}
	if len(resp.Results.Channels) == 0 {
		return tr, nil
	}
	ch := resp.Results.Channels[0]
	tr.Language = strings.ToLower(ch.DetectedLanguage)
	if len(ch.Alternatives) == 0 {
		return tr, nil
	}
	tr.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	tr.Confidence = ch.Alternatives[0].Confidence
	return tr, nil
}
