package cbrabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/rabbitmq/amqp091-go"
)

const ProviderType = "rabbitmq"

const defaultRoutingKey = "callback"

// RabbitMQProvider publishes each message to an exchange.
//
// Ref.Config:      server_url (host:port, required), exchange (required),
//
//	routing_key (default "callback"), tls ("true"/"false")
//
// Ref.Credentials: username, password
type RabbitMQProvider struct {
	*callback.BaseProvider
}

var _ callback.Provider = (*RabbitMQProvider)(nil)

func New() *RabbitMQProvider {
	return &RabbitMQProvider{
		BaseProvider: callback.NewBaseProvider(ProviderType,
			callback.WithRequiredConfig("server_url", "exchange"),
		),
	}
}

func (p *RabbitMQProvider) Validate(ctx context.Context, ref *callback.Ref) error {
	if err := p.BaseProvider.Validate(ctx, ref); err != nil {
		return err
	}
	if tlsStr, ok := ref.Config["tls"]; ok {
		if tlsStr != "true" && tlsStr != "false" {
			return callback.NewErrCallbackValidation([]callback.ValidationErrorDetail{{
				Field: "config.tls",
				Type:  "invalid",
			}})
		}
	}
	return nil
}

func (p *RabbitMQProvider) CreateCallback(ctx context.Context, ref *callback.Ref) (callback.Callback, error) {
	if err := p.Validate(ctx, ref); err != nil {
		return nil, err
	}

	routingKey := ref.Config["routing_key"]
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}

	return &RabbitMQCallback{
		BaseCallback: callback.NewBaseCallback(),
		url:          RabbitURL(ref.Config["server_url"], ref.Config["tls"] == "true", ref.Credentials["username"], ref.Credentials["password"]),
		exchange:     ref.Config["exchange"],
		routingKey:   routingKey,
	}, nil
}

// RabbitURL builds the AMQP URL from the reference parts.
func RabbitURL(serverURL string, useTLS bool, username, password string) string {
	scheme := "amqp"
	if useTLS {
		scheme = "amqps"
	}
	if username == "" {
		return fmt.Sprintf("%s://%s", scheme, serverURL)
	}
	return fmt.Sprintf("%s://%s:%s@%s", scheme, username, password, serverURL)
}

// RabbitMQCallback connects lazily on the first delivery and reconnects when
// the connection or channel has been closed.
type RabbitMQCallback struct {
	*callback.BaseCallback
	url        string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func (c *RabbitMQCallback) Close() error {
	c.BaseCallback.StartClose()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *RabbitMQCallback) Deliver(ctx context.Context, message string) error {
	if err := c.BaseCallback.StartDeliver(); err != nil {
		return err
	}
	defer c.BaseCallback.FinishDeliver()

	if err := c.ensureConnection(); err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifyRabbitMQError(err))
	}

	payload := callback.NewPayload(message, time.Now())
	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	headers := make(amqp091.Table)
	for k, v := range payload.Metadata() {
		headers[k] = v
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if err := channel.PublishWithContext(ctx,
		c.exchange,   // exchange
		c.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   payload.DeliveryID,
			Headers:     headers,
			Body:        body,
		},
	); err != nil {
		return callback.NewErrDeliveryAttempt(err, ProviderType, ClassifyRabbitMQError(err))
	}
	return nil
}

func (c *RabbitMQCallback) ensureConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.channel = channel
	return nil
}

// ClassifyRabbitMQError returns a short failure code for an AMQP or network error.
func ClassifyRabbitMQError(err error) string {
	if err == nil {
		return "unknown"
	}

	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp091.AccessRefused:
			return "access_denied"
		case amqp091.NotFound:
			return "exchange_not_found"
		case amqp091.ChannelError:
			return "channel_error"
		case amqp091.ConnectionForced:
			return "connection_forced"
		default:
			return "rabbitmq_error"
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection_reset"
	case strings.Contains(errStr, "i/o timeout"), strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "tls:"), strings.Contains(errStr, "x509:"):
		return "tls_error"
	case strings.Contains(errStr, "ACCESS_REFUSED"), strings.Contains(errStr, "PLAIN"):
		return "auth_failed"
	case strings.Contains(errStr, "channel"):
		return "channel_error"
	default:
		return "rabbitmq_error"
	}
}
