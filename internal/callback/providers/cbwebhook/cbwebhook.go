package cbwebhook

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
)

const ProviderType = "webhook"

const (
	DefaultHeaderPrefix = "x-cbserver-"
	defaultTimeout      = 10 * time.Second
)

// WebhookProvider delivers messages as signed JSON POST requests.
//
// Ref.Config:      url (required)
// Ref.Credentials: secret, previous_secret (optional signing keys)
type WebhookProvider struct {
	*callback.BaseProvider
	client       *http.Client
	headerPrefix string
	userAgent    string
}

var _ callback.Provider = (*WebhookProvider)(nil)

type Option func(*WebhookProvider)

func WithHeaderPrefix(prefix string) Option {
	return func(p *WebhookProvider) {
		if prefix != "" {
			p.headerPrefix = prefix
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(p *WebhookProvider) {
		p.userAgent = userAgent
	}
}

// WithHTTPClient overrides the client used for every delivery.
func WithHTTPClient(client *http.Client) Option {
	return func(p *WebhookProvider) {
		p.client = client
	}
}

func New(opts ...Option) *WebhookProvider {
	p := &WebhookProvider{
		BaseProvider: callback.NewBaseProvider(ProviderType, callback.WithRequiredConfig("url")),
		client:       &http.Client{Timeout: defaultTimeout},
		headerPrefix: DefaultHeaderPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WebhookProvider) Validate(ctx context.Context, ref *callback.Ref) error {
	if err := p.BaseProvider.Validate(ctx, ref); err != nil {
		return err
	}
	u, err := url.Parse(ref.Config["url"])
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return callback.NewErrCallbackValidation([]callback.ValidationErrorDetail{{
			Field: "config.url",
			Type:  "format",
		}})
	}
	return nil
}

func (p *WebhookProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	if err := p.Validate(ctx, ref); err != nil {
		return nil, err
	}
	return &WebhookCallback{
		BaseCallback: callback.NewBaseCallback(),
		client:       p.client,
		url:          ref.Config["url"],
		headerPrefix: p.headerPrefix,
		userAgent:    p.userAgent,
		signer:       NewSigner(ref.Credentials["secret"], ref.Credentials["previous_secret"]),
	}, nil
}

type WebhookCallback struct {
	*callback.BaseCallback
	client       *http.Client
	url          string
	headerPrefix string
	userAgent    string
	signer       *Signer
}

func (c *WebhookCallback) Close() error {
	c.BaseCallback.StartClose()
	return nil
}

func (c *WebhookCallback) Deliver(ctx context.Context, message string) error {
	if err := c.BaseCallback.StartDeliver(); err != nil {
		return err
	}
	defer c.BaseCallback.FinishDeliver()

	now := time.Now()
	payload := callback.NewPayload(message, now)
	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	webhookReq := &WebhookRequest{
		URL:          c.url,
		Timestamp:    now,
		RawBody:      body,
		Metadata:     map[string]string{"delivery-id": payload.DeliveryID},
		HeaderPrefix: c.headerPrefix,
		UserAgent:    c.userAgent,
		Signer:       c.signer,
	}
	httpReq, err := webhookReq.ToHTTPRequest(ctx)
	if err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, "invalid_request")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifyNetworkError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return callback.NewErrDeliveryAttempt(responseError(resp), ProviderType, strconv.Itoa(resp.StatusCode))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
