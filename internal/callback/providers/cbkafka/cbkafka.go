package cbkafka

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const ProviderType = "kafka"

// KafkaProvider writes each message to a Kafka topic.
//
// Ref.Config:      brokers (comma separated host:port, required), topic (required), tls
// Ref.Credentials: username, password (SASL/PLAIN when set)
type KafkaProvider struct {
	*callback.BaseProvider
	maxAttempts int
}

var _ callback.Provider = (*KafkaProvider)(nil)

type Option func(*KafkaProvider)

// WithMaxAttempts bounds how many times a write is attempted before the
// delivery fails.
func WithMaxAttempts(n int) Option {
	return func(p *KafkaProvider) {
		p.maxAttempts = n
	}
}

func New(opts ...Option) *KafkaProvider {
	p := &KafkaProvider{
		BaseProvider: callback.NewBaseProvider(ProviderType,
			callback.WithRequiredConfig("brokers", "topic"),
		),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaProvider) Validate(ctx context.Context, ref *callback.Ref) error {
	if err := p.BaseProvider.Validate(ctx, ref); err != nil {
		return err
	}

	var details []callback.ValidationErrorDetail
	for _, broker := range splitBrokers(ref.Config["brokers"]) {
		if _, _, err := net.SplitHostPort(broker); err != nil {
			details = append(details, callback.ValidationErrorDetail{Field: "config.brokers", Type: "format"})
			break
		}
	}
	if tlsStr, ok := ref.Config["tls"]; ok && tlsStr != "true" && tlsStr != "false" {
		details = append(details, callback.ValidationErrorDetail{Field: "config.tls", Type: "invalid"})
	}
	if (ref.Credentials["username"] == "") != (ref.Credentials["password"] == "") {
		details = append(details, callback.ValidationErrorDetail{Field: "credentials", Type: "incomplete"})
	}
	if len(details) > 0 {
		return callback.NewErrCallbackValidation(details)
	}
	return nil
}

func (p *KafkaProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	if err := p.Validate(ctx, ref); err != nil {
		return nil, err
	}

	transport := &kafka.Transport{
		DialTimeout: 5 * time.Second,
	}
	if ref.Config["tls"] == "true" {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if username := ref.Credentials["username"]; username != "" {
		transport.SASL = plain.Mechanism{
			Username: username,
			Password: ref.Credentials["password"],
		}
	}

	return &KafkaCallback{
		BaseCallback: callback.NewBaseCallback(),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(splitBrokers(ref.Config["brokers"])...),
			Topic:        ref.Config["topic"],
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  p.maxAttempts,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		},
	}, nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type KafkaCallback struct {
	*callback.BaseCallback
	writer *kafka.Writer
}

func (c *KafkaCallback) Close() error {
	c.BaseCallback.StartClose()
	return c.writer.Close()
}

func (c *KafkaCallback) Deliver(ctx context.Context, message string) error {
	if err := c.BaseCallback.StartDeliver(); err != nil {
		return err
	}
	defer c.BaseCallback.FinishDeliver()

	payload := callback.NewPayload(message, time.Now())
	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	headers := make([]kafka.Header, 0, 2)
	for k, v := range payload.Metadata() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := c.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(payload.DeliveryID),
		Value:   body,
		Headers: headers,
	}); err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifyKafkaError(err))
	}
	return nil
}

// ClassifyKafkaError returns a short failure code for a writer error.
func ClassifyKafkaError(err error) string {
	if err == nil {
		return "unknown"
	}
	if callback.IsCanceled(err) {
		return "timeout"
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		switch kafkaErr {
		case kafka.UnknownTopicOrPartition:
			return "topic_not_found"
		case kafka.TopicAuthorizationFailed, kafka.SASLAuthenticationFailed:
			return "access_denied"
		case kafka.MessageSizeTooLarge:
			return "message_too_large"
		default:
			return "kafka_error"
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "i/o timeout"):
		return "timeout"
	default:
		return "kafka_error"
	}
}
