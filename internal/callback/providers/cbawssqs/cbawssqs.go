package cbawssqs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/hookdeck/cbserver/internal/callback"
)

const ProviderType = "awssqs"

type AWSSQSConfig struct {
	QueueURL string
	Region   string
	Endpoint string
}

type AWSSQSCredentials struct {
	Key     string
	Secret  string
	Session string // optional
}

// AWSSQSProvider sends each message to an SQS queue.
type AWSSQSProvider struct {
	*callback.BaseProvider
	clientOpts []func(*sqs.Options)
}

var _ callback.Provider = (*AWSSQSProvider)(nil)

type Option func(*AWSSQSProvider)

// WithClientOptions appends options applied to every SQS client the provider
// builds.
func WithClientOptions(opts ...func(*sqs.Options)) Option {
	return func(p *AWSSQSProvider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

func New(opts ...Option) *AWSSQSProvider {
	p := &AWSSQSProvider{
		BaseProvider: callback.NewBaseProvider(ProviderType,
			callback.WithRequiredConfig("queue_url", "region"),
			callback.WithRequiredCredentials("key", "secret"),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AWSSQSProvider) Validate(ctx context.Context, ref *callback.Ref) error {
	_, _, err := p.resolveConfig(ctx, ref)
	return err
}

func (p *AWSSQSProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	cfg, creds, err := p.resolveConfig(ctx, ref)
	if err != nil {
		return nil, err
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.Key,
			creds.Secret,
			creds.Session,
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := append([]func(*sqs.Options){func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = awssdk.String(cfg.Endpoint)
		}
	}}, p.clientOpts...)

	return &AWSSQSCallback{
		BaseCallback: callback.NewBaseCallback(),
		client:       sqs.NewFromConfig(sdkConfig, clientOpts...),
		queueURL:     cfg.QueueURL,
	}, nil
}

func (p *AWSSQSProvider) resolveConfig(ctx context.Context, ref *callback.Ref) (*AWSSQSConfig, *AWSSQSCredentials, error) {
	if err := p.BaseProvider.Validate(ctx, ref); err != nil {
		return nil, nil, err
	}

	var details []callback.ValidationErrorDetail
	if !isHTTPURL(ref.Config["queue_url"]) {
		details = append(details, callback.ValidationErrorDetail{Field: "config.queue_url", Type: "pattern"})
	}
	if endpoint := ref.Config["endpoint"]; endpoint != "" && !isHTTPURL(endpoint) {
		details = append(details, callback.ValidationErrorDetail{Field: "config.endpoint", Type: "pattern"})
	}
	if len(details) > 0 {
		return nil, nil, callback.NewErrCallbackValidation(details)
	}

	return &AWSSQSConfig{
			QueueURL: ref.Config["queue_url"],
			Region:   ref.Config["region"],
			Endpoint: ref.Config["endpoint"],
		}, &AWSSQSCredentials{
			Key:     ref.Credentials["key"],
			Secret:  ref.Credentials["secret"],
			Session: ref.Credentials["session"],
		}, nil
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.IsAbs() && parsed.Host != "" && (parsed.Scheme == "http" || parsed.Scheme == "https")
}

type AWSSQSCallback struct {
	*callback.BaseCallback
	client   *sqs.Client
	queueURL string
}

func (c *AWSSQSCallback) Close() error {
	c.BaseCallback.StartClose()
	return nil
}

func (c *AWSSQSCallback) Deliver(ctx context.Context, message string) error {
	if err := c.BaseCallback.StartDeliver(); err != nil {
		return err
	}
	defer c.BaseCallback.FinishDeliver()

	payload := callback.NewPayload(message, time.Now())
	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	attributes := make(map[string]types.MessageAttributeValue)
	for k, v := range payload.Metadata() {
		attributes[k] = types.MessageAttributeValue{
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String(v),
		}
	}

	if _, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          awssdk.String(c.queueURL),
		MessageBody:       awssdk.String(string(body)),
		MessageAttributes: attributes,
	}); err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifySQSError(err))
	}
	return nil
}

// ClassifySQSError returns a short failure code for an SQS API or transport error.
func ClassifySQSError(err error) string {
	if err == nil {
		return "unknown"
	}
	if callback.IsCanceled(err) {
		return "timeout"
	}

	var notExist *types.QueueDoesNotExist
	if errors.As(err, &notExist) {
		return "queue_not_found"
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.Contains(code, "QueueDoesNotExist"), strings.Contains(code, "NonExistentQueue"):
			return "queue_not_found"
		case strings.Contains(code, "AccessDenied"), strings.Contains(code, "InvalidClientTokenId"),
			strings.Contains(code, "SignatureDoesNotMatch"):
			return "access_denied"
		case strings.Contains(code, "Throttl"), strings.Contains(code, "RequestThrottled"):
			return "throttled"
		default:
			return "api_error"
		}
	}

	if strings.Contains(err.Error(), "connection refused") {
		return "connection_refused"
	}
	return "request_failed"
}
