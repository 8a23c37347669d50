// Package deepl provides a DeepL-backed translation provider using the DeepL
// REST API v2. It implements translate.Provider, translate.Detector and
// translate.Lister.
package deepl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/types"
)

const (
	freeBaseURL = "https://api-free.deepl.com"
	proBaseURL  = "https://api.deepl.com"

	// defaultFormality keeps the conversational register without failing for
	// target languages that have no formality variants.
	defaultFormality = "prefer_less"
)

// Compile-time interface assertions.
var (
	_ translate.Provider = (*Provider)(nil)
	_ translate.Detector = (*Provider)(nil)
	_ translate.Lister   = (*Provider)(nil)
)

// Option is a functional option for configuring the DeepL Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. By default keys ending in ":fx" use
// the free endpoint and all others the pro endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithFormality sets the formality parameter ("less", "more", "prefer_less",
// "prefer_more" or "default").
func WithFormality(f string) Option {
	return func(p *Provider) {
		p.formality = f
	}
}

// WithGlossaryID attaches a DeepL glossary to every translation. DeepL only
// honours glossaries when the source language is given explicitly.
func WithGlossaryID(id string) Option {
	return func(p *Provider) {
		p.glossaryID = id
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements translate.Provider backed by DeepL.
type Provider struct {
	apiKey     string
	baseURL    string
	formality  string
	glossaryID string
	httpClient *http.Client
}

// New creates a new DeepL Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepl: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    proBaseURL,
		formality:  defaultFormality,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if strings.HasSuffix(apiKey, ":fx") {
		p.baseURL = freeBaseURL
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// translateRequest is the JSON body of POST /v2/translate.
type translateRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
	Formality  string   `json:"formality,omitempty"`
	GlossaryID string   `json:"glossary_id,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, target, source string) (string, error) {
	req := translateRequest{
		Text:       []string{text},
		TargetLang: targetCode(target),
		SourceLang: sourceCode(source),
		Formality:  p.formality,
	}
	if req.SourceLang != "" {
		req.GlossaryID = p.glossaryID
	}
	resp, err := p.translate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Translations[0].Text, nil
}

// DetectLanguage translates text to English and reports the source language
// DeepL detected on the way.
func (p *Provider) DetectLanguage(ctx context.Context, text string) (string, error) {
	resp, err := p.translate(ctx, translateRequest{Text: []string{text}, TargetLang: "EN-US"})
	if err != nil {
		return "", err
	}
	return types.NormalizeLanguage(resp.Translations[0].DetectedSourceLanguage), nil
}

func (p *Provider) translate(ctx context.Context, body translateRequest) (*translateResponse, error) {
	if body.TargetLang == "" {
		return nil, errors.New("deepl: target language must not be empty")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("deepl: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/translate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("deepl: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp translateResponse
	if err := p.do(req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Translations) == 0 {
		return nil, errors.New("deepl: empty translations in response")
	}
	return &resp, nil
}

// SupportedLanguages implements translate.Lister. Regional variants collapse
// into one catalogue entry per base language.
func (p *Provider) SupportedLanguages(ctx context.Context) ([]types.Language, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/languages?type=target", nil)
	if err != nil {
		return nil, fmt.Errorf("deepl: create request: %w", err)
	}

	var raw []struct {
		Language string `json:"language"`
		Name     string `json:"name"`
	}
	if err := p.do(req, &raw); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	out := make([]types.Language, 0, len(raw))
	for _, l := range raw {
		code := types.NormalizeLanguage(l.Language)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if known, ok := types.LookupLanguage(code); ok {
			out = append(out, known)
			continue
		}
		out = append(out, types.Language{Code: code, Name: l.Name, NativeName: l.Name})
	}
	return out, nil
}

// do sends req with the auth header and decodes a JSON response into v.
func (p *Provider) do(req *http.Request, v any) error {
	req.Header.Set("Authorization", "DeepL-Auth-Key "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deepl: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("deepl: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("deepl: parse response: %w", err)
	}
	return nil
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deepl: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("deepl: HTTP %d: %s", e.StatusCode, e.Message)
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

// targetCode maps an ISO code to a DeepL target language. English and
// Portuguese need a regional variant as target.
func targetCode(lang string) string {
	lang = strings.ToUpper(strings.TrimSpace(lang))
	switch lang {
	case "EN":
		return "EN-US"
	case "PT":
		return "PT-PT"
	case "ZH":
		return "ZH-HANS"
	}
	return lang
}

// sourceCode maps an ISO code to a DeepL source language, which never carries
// a region.
func sourceCode(lang string) string {
	lang = strings.ToUpper(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
