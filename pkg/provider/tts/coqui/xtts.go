package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/polyglot/pkg/types"
)

const (
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
)

type xttsServer struct{}

// ttsRequest is the POST /tts_to_audio/ body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (xttsServer) synthesisRequest(ctx context.Context, p *Provider, text, voiceID string) (*http.Request, error) {
	if voiceID == "" {
		return nil, errors.New("coqui: XTTS mode needs a voiceID")
	}
	data, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voiceID, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// voices lists the studio speakers, keyed by name in the reply.
func (xttsServer) voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error) {
	body, err := p.get(ctx, studioSpeakersEndpoint)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !res.IsObject() {
		return nil, fmt.Errorf("coqui: %s: want a JSON object", studioSpeakersEndpoint)
	}

	var names []string
	res.ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	slices.Sort(names)

	out := make([]types.VoiceProfile, 0, len(names))
	for _, n := range names {
		out = append(out, types.VoiceProfile{ID: n, Name: n, Provider: providerName, Category: "studio"})
	}
	return out, nil
}

// clone uploads samples as wav_files. The server names the speaker; name is
// a hint and the fallback when the reply carries none.
func (xttsServer) clone(ctx context.Context, p *Provider, name string, samples [][]byte) (*types.VoiceProfile, error) {
	if len(samples) == 0 {
		return nil, errors.New("coqui: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			return nil, fmt.Errorf("coqui: write name field: %w", err)
		}
	}
	for i, s := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return nil, fmt.Errorf("coqui: sample %d: %w", i, err)
		}
		if _, err := fw.Write(s); err != nil {
			return nil, fmt.Errorf("coqui: sample %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("coqui: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("coqui: create clone request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	reply, err := p.do(req)
	if err != nil {
		return nil, err
	}
	id := gjson.GetBytes(reply, "name").String()
	if id == "" {
		id = name
	}
	if id == "" {
		return nil, errors.New("coqui: clone reply has no speaker name")
	}
	return &types.VoiceProfile{ID: id, Name: id, Provider: providerName, Category: "cloned"}, nil
}
