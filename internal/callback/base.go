package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hookdeck/cbserver/internal/idgen"
)

// BaseProvider validates the presence of the config and credential keys a
// provider needs.
type BaseProvider struct {
	providerType        string
	requiredConfig      []string
	requiredCredentials []string
}

type BaseProviderOption func(*BaseProvider)

func WithRequiredConfig(keys ...string) BaseProviderOption {
	return func(p *BaseProvider) {
		p.requiredConfig = append(p.requiredConfig, keys...)
	}
}

func WithRequiredCredentials(keys ...string) BaseProviderOption {
	return func(p *BaseProvider) {
		p.requiredCredentials = append(p.requiredCredentials, keys...)
	}
}

func NewBaseProvider(providerType string, opts ...BaseProviderOption) *BaseProvider {
	p := &BaseProvider{providerType: providerType}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *BaseProvider) Type() string {
	return p.providerType
}

func (p *BaseProvider) Validate(ctx context.Context, ref *Ref) error {
	if ref == nil {
		return ErrInvalidCallback
	}
	if ref.Type != p.providerType {
		return NewErrCallbackValidation([]ValidationErrorDetail{{Field: "type", Type: "mismatch"}})
	}

	var details []ValidationErrorDetail
	for _, key := range p.requiredConfig {
		if ref.Config[key] == "" {
			details = append(details, ValidationErrorDetail{Field: "config." + key, Type: "required"})
		}
	}
	for _, key := range p.requiredCredentials {
		if ref.Credentials[key] == "" {
			details = append(details, ValidationErrorDetail{Field: "credentials." + key, Type: "required"})
		}
	}
	if len(details) > 0 {
		return NewErrCallbackValidation(details)
	}
	return nil
}

// BaseCallback tracks in-flight deliveries so Close can wait for them.
type BaseCallback struct {
	active sync.WaitGroup
	closed atomic.Bool
}

func NewBaseCallback() *BaseCallback {
	return &BaseCallback{}
}

// StartDeliver returns ErrCallbackClosed once Close has begun, otherwise it
// records an in-flight delivery that must be finished with FinishDeliver.
func (b *BaseCallback) StartDeliver() error {
	if b.closed.Load() {
		return ErrCallbackClosed
	}
	b.active.Add(1)
	return nil
}

func (b *BaseCallback) FinishDeliver() {
	b.active.Done()
}

// StartClose marks the callback closed and waits for in-flight deliveries.
func (b *BaseCallback) StartClose() {
	b.closed.Store(true)
	b.active.Wait()
}

// Payload is the body every provider sends to the peer.
type Payload struct {
	DeliveryID string `json:"delivery_id"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

func NewPayload(message string, now time.Time) Payload {
	return Payload{
		DeliveryID: idgen.Delivery(),
		Message:    message,
		Timestamp:  now.Unix(),
	}
}

func (p Payload) Marshal() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal callback payload: %w", err)
	}
	return body, nil
}

// Metadata returns the attributes providers attach as headers or message
// attributes alongside the body.
func (p Payload) Metadata() map[string]string {
	return map[string]string{
		"timestamp":   fmt.Sprintf("%d", p.Timestamp),
		"delivery-id": p.DeliveryID,
	}
}
