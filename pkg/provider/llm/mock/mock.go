// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/polyglot/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider replies with CompleteResponse and CompleteErr, or with Respond
// when set, and records every request.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// Respond, if non-nil, computes the reply per request and takes
	// precedence over the static fields.
	Respond func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

// Complete records req and returns the scripted reply. A nil CompleteResponse
// yields an empty reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	respond := p.Respond
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond != nil {
		return respond(req)
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse == nil {
		return &llm.CompletionResponse{}, nil
	}
	out := *p.CompleteResponse
	return &out, nil
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// CallCount returns how many times Complete was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
