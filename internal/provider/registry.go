package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownProvider indicates the requested provider id is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same id twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// ErrNotConfigured indicates a provider is registered but has no API key.
var ErrNotConfigured = errors.New("provider not configured")

// GenerationRequest is the canonical payload handed to an adapter. The
// target model is part of the adapter's own configuration, not the request.
type GenerationRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// GenerationResult is a successful upstream completion in canonical form.
// Usage is passed through verbatim; token-count semantics differ per
// provider and are not normalized here.
type GenerationResult struct {
	Output       string
	FinishReason string
	Usage        map[string]any
}

// Provider adapts the canonical request to one upstream LLM service.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// Defaults carries the built-in base URL and model for an adapter, applied
// when the configuration leaves them unset.
type Defaults struct {
	BaseURL string
	Model   string
}

// Registry maintains the mapping of provider ids to adapters.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Provider
	order []string
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Provider)}
}

// Register adds the provider under its own name.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name())
	}
	r.byID[p.Name()] = p
	r.order = append(r.order, p.Name())
	return nil
}

// Lookup returns the adapter for a provider id.
func (r *Registry) Lookup(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs lists registered provider ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
