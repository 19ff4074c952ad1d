package callback

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Callback is a handle to a remote peer's callback endpoint. Deliver may be
// invoked any number of times until the peer becomes unreachable. Close releases
// the handle and waits for in-flight deliveries.
type Callback interface {
	Deliver(ctx context.Context, message string) error
	Close() error
}

// Ref is the wire form of a callback reference: a provider type plus the
// provider-specific config and credentials needed to reach the peer.
type Ref struct {
	Type        string            `json:"type" binding:"required"`
	Config      map[string]string `json:"config"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// Provider turns references of one type into live callbacks.
type Provider interface {
	Type() string
	Validate(ctx context.Context, ref *Ref) error
	CreateCallback(ctx context.Context, ref *Ref) (Callback, error)
}

// Registry resolves references to callbacks using the registered providers.
type Registry interface {
	RegisterProvider(provider Provider) error
	Resolve(ctx context.Context, ref *Ref) (Callback, error)
	Validate(ctx context.Context, ref *Ref) error
	ProviderTypes() []string
}

type registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

var _ Registry = (*registry)(nil)

func NewRegistry() Registry {
	return &registry{
		providers: make(map[string]Provider),
	}
}

func (r *registry) RegisterProvider(provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.Type()]; exists {
		return fmt.Errorf("callback provider %q already registered", provider.Type())
	}
	r.providers[provider.Type()] = provider
	return nil
}

func (r *registry) provider(ref *Ref) (Provider, error) {
	if ref == nil || ref.Type == "" {
		return nil, ErrInvalidCallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[ref.Type]
	if !ok {
		return nil, NewErrCallbackValidation([]ValidationErrorDetail{{
			Field: "type",
			Type:  "unsupported",
		}})
	}
	return provider, nil
}

func (r *registry) Validate(ctx context.Context, ref *Ref) error {
	provider, err := r.provider(ref)
	if err != nil {
		return err
	}
	return provider.Validate(ctx, ref)
}

func (r *registry) Resolve(ctx context.Context, ref *Ref) (Callback, error) {
	provider, err := r.provider(ref)
	if err != nil {
		return nil, err
	}
	return provider.CreateCallback(ctx, ref)
}

func (r *registry) ProviderTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Func adapts an in-process function to the Callback interface.
type Func func(ctx context.Context, message string) error

var _ Callback = Func(nil)

func (f Func) Deliver(ctx context.Context, message string) error {
	return f(ctx, message)
}

func (f Func) Close() error { return nil }
