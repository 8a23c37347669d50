package coqui

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/types"
)

const (
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"
)

type standardServer struct{}

func (standardServer) synthesisRequest(ctx context.Context, p *Provider, text, voiceID string) (*http.Request, error) {
	q := url.Values{"text": {text}}
	if voiceID != "" {
		q.Set("speaker_id", voiceID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// voices lists the model's speakers, or the model itself when it has a
// single speaker.
func (standardServer) voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error) {
	body, err := p.get(ctx, detailsEndpoint)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("coqui: %s: invalid JSON", detailsEndpoint)
	}
	details := gjson.ParseBytes(body)
	model := details.Get("model_name").String()

	var speakers []string
	for _, s := range details.Get("speakers").Array() {
		speakers = append(speakers, s.String())
	}
	if len(speakers) == 0 {
		if model == "" {
			model = "default"
		}
		return []types.VoiceProfile{{
			ID:       model,
			Name:     model,
			Provider: providerName,
			Category: "single-speaker",
			Metadata: map[string]string{"model_name": model},
		}}, nil
	}

	slices.Sort(speakers)
	out := make([]types.VoiceProfile, 0, len(speakers))
	for _, s := range speakers {
		out = append(out, types.VoiceProfile{
			ID:       s,
			Name:     s,
			Provider: providerName,
			Category: "speaker",
			Metadata: map[string]string{"model_name": model},
		})
	}
	return out, nil
}

func (standardServer) clone(context.Context, *Provider, string, [][]byte) (*types.VoiceProfile, error) {
	return nil, fmt.Errorf("coqui: standard API mode: %w", tts.ErrCloneUnsupported)
}
