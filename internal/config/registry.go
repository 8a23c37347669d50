package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/polyglot/pkg/provider/llm"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is the name → constructor table of one provider kind.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[T]
}

func (f *factories[T]) add(name string, fn Factory[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]Factory[T])
	}
	f.m[name] = fn
}

func (f *factories[T]) build(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.m))
}

// Registry maps provider names to constructors, one table per provider
// kind. Registering an existing name replaces it. Safe for concurrent use.
type Registry struct {
	llm       factories[llm.Provider]
	stt       factories[stt.Provider]
	translate factories[translate.Provider]
	tts       factories[tts.Provider]
	vad       factories[vad.Engine]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	r := &Registry{}
	r.llm.kind = "llm"
	r.stt.kind = "stt"
	r.translate.kind = "translate"
	r.tts.kind = "tts"
	r.vad.kind = "vad"
	return r
}

// RegisterLLM registers fn under name.
func (r *Registry) RegisterLLM(name string, fn Factory[llm.Provider]) { r.llm.add(name, fn) }

// RegisterSTT registers fn under name.
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider]) { r.stt.add(name, fn) }

// RegisterTranslate registers fn under name.
func (r *Registry) RegisterTranslate(name string, fn Factory[translate.Provider]) {
	r.translate.add(name, fn)
}

// RegisterTTS registers fn under name.
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider]) { r.tts.add(name, fn) }

// RegisterVAD registers fn under name.
func (r *Registry) RegisterVAD(name string, fn Factory[vad.Engine]) { r.vad.add(name, fn) }

// CreateLLM builds the language model named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.build(entry) }

// CreateSTT builds the speech recogniser named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.build(entry) }

// CreateTranslate builds the translator named by entry.Name.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Provider, error) {
	return r.translate.build(entry)
}

// CreateTTS builds the voice service named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.build(entry) }

// CreateVAD builds the voice activity engine named by entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) { return r.vad.build(entry) }

// Names returns the sorted registered names for kind ("llm", "stt",
// "translate", "tts" or "vad"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "translate":
		return r.translate.names()
	case "tts":
		return r.tts.names()
	case "vad":
		return r.vad.names()
	}
	return nil
}
