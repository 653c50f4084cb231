package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
	"github.com/lodrian/ascolta/pkg/provider/vad"
	"github.com/lodrian/ascolta/pkg/provider/wake"
)

// ErrProviderNotRegistered reports a Create* call naming a provider no
// factory was registered for. Match it with [errors.Is]; the wrapped
// message carries the kind and name.
var ErrProviderNotRegistered = errors.New("config: no such provider")

// SourceFactory builds an audio capture source. Unlike the other factory
// kinds it also receives the pipeline snapshot, because capture backends
// need the device, sample rate, and frame duration to open a stream.
type SourceFactory func(ProviderEntry, PipelineConfig) (audio.Source, error)

// Registry holds the provider factories the config refers to by name, one
// namespace per provider kind. main registers the compiled-in backends at
// startup; wiring then instantiates whatever the loaded config names.
// Registration and lookup may run concurrently.
type Registry struct {
	mu     sync.RWMutex
	stt    map[string]func(ProviderEntry) (stt.Provider, error)
	vad    map[string]func(ProviderEntry) (vad.Engine, error)
	wake   map[string]func(ProviderEntry) (wake.Engine, error)
	source map[string]SourceFactory
}

// NewRegistry returns a Registry with no factories registered.
func NewRegistry() *Registry {
	return &Registry{
		stt:    make(map[string]func(ProviderEntry) (stt.Provider, error)),
		vad:    make(map[string]func(ProviderEntry) (vad.Engine, error)),
		wake:   make(map[string]func(ProviderEntry) (wake.Engine, error)),
		source: make(map[string]SourceFactory),
	}
}

// register and lookup carry the lock discipline for all four kinds. The maps
// themselves never change identity after NewRegistry, so the registry lock
// only has to cover the map contents.

func register[F any](r *Registry, m map[string]F, name string, factory F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

func lookup[F any](r *Registry, m map[string]F, kind, name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return factory, nil
}

// RegisterSTT makes a transcription backend available under name. A second
// registration with the same name replaces the first; the same holds for the
// other Register methods.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterVAD makes a speech/silence classifier backend available under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// RegisterWake makes a wake-word backend available under name.
func (r *Registry) RegisterWake(name string, factory func(ProviderEntry) (wake.Engine, error)) {
	register(r, r.wake, name, factory)
}

// RegisterSource makes a capture source backend available under name.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	register(r, r.source, name, factory)
}

// CreateSTT builds the transcription provider entry names. The factory runs
// outside the registry lock, so slow constructors do not block registration.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	factory, err := lookup(r, r.stt, "stt", entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateVAD builds the classifier engine entry names.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	factory, err := lookup(r, r.vad, "vad", entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateWake builds the wake-word engine entry names.
func (r *Registry) CreateWake(entry ProviderEntry) (wake.Engine, error) {
	factory, err := lookup(r, r.wake, "wake", entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateSource builds the capture source entry names, handing the factory
// both the entry and the pipeline snapshot.
func (r *Registry) CreateSource(entry ProviderEntry, pipe PipelineConfig) (audio.Source, error) {
	factory, err := lookup(r, r.source, "source", entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry, pipe)
}
