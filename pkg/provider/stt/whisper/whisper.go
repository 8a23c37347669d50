// Package whisper provides local whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST API
// at POST /inference. Each utterance clip is uploaded as a multipart WAV file
// and transcribed in one request.
//
// [NativeProvider] links whisper.cpp in-process through its CGO bindings and
// needs no server at all.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
//	tr, err := p.Transcribe(ctx, clip, stt.Options{Language: "es"})
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/types"
)

// autoLanguage asks whisper.cpp to detect the spoken language.
const autoLanguage = "auto"

// requestLanguage maps an empty hint to automatic detection.
func requestLanguage(opts stt.Options) string {
	if opts.Language == "" {
		return autoLanguage
	}
	return opts.Language
}

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use (e.g., "small"). Empty
// keeps the model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTemperature sets the decoding temperature. Negative values keep the
// server default.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithHTTPClient overrides the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider transcribes through a whisper.cpp HTTP server.
type Provider struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New returns a Provider for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint:    strings.TrimRight(serverURL, "/") + "/inference",
		temperature: -1,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads clip and parses the verbose JSON reply.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip == nil {
		return stt.Transcript{}, errors.New("whisper: nil clip")
	}

	body, contentType, err := p.form(clip, opts)
	if err != nil {
		return stt.Transcript{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw[:min(len(raw), 512)]))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(raw) {
		return stt.Transcript{}, errors.New("whisper: response is not valid JSON")
	}
	return parseVerbose(gjson.ParseBytes(raw)), nil
}

// form builds the multipart upload for clip.
func (p *Provider) form(clip *audio.Clip, opts stt.Options) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", clip.Filename())
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, clip.Reader()); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"language", requestLanguage(opts)},
		{"response_format", "verbose_json"},
		{"model", p.model},
		{"prompt", opts.Prompt},
	}
	if p.temperature >= 0 {
		fields = append(fields, [2]string{"temperature", strconv.FormatFloat(p.temperature, 'f', -1, 64)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// parseVerbose reads the text, language and duration of a verbose_json reply.
// Confidence is the mean per-segment probability, exp(avg_logprob), when the
// server reports segments. Duration falls back to the end of the last
// segment.
func parseVerbose(res gjson.Result) stt.Transcript {
	lang := res.Get("detected_language").String()
	if lang == "" {
		lang = res.Get("language").String()
	}
	tr := stt.Transcript{
		Text:     strings.TrimSpace(res.Get("text").String()),
		Language: types.NormalizeLanguage(lang),
		Duration: seconds(res.Get("duration").Float()),
	}

	segments := res.Get("segments").Array()
	var sum float64
	var scored int
	for _, seg := range segments {
		if lp := seg.Get("avg_logprob"); lp.Exists() {
			sum += math.Exp(min(lp.Float(), 0))
			scored++
		}
	}
	if scored > 0 {
		tr.Confidence = sum / float64(scored)
	}
	if tr.Duration == 0 && len(segments) > 0 {
		tr.Duration = seconds(segments[len(segments)-1].Get("end").Float())
	}
	return tr
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
