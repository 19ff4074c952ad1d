// Package providers registers the built-in callback transports.
package providers

import (
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbawssqs"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbkafka"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbrabbitmq"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbredis"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbwebhook"
)

type Config struct {
	WebhookHeaderPrefix string
	WebhookUserAgent    string
}

func RegisterDefault(registry callback.Registry, cfg Config) error {
	var webhookOpts []cbwebhook.Option
	if cfg.WebhookHeaderPrefix != "" {
		webhookOpts = append(webhookOpts, cbwebhook.WithHeaderPrefix(cfg.WebhookHeaderPrefix))
	}
	if cfg.WebhookUserAgent != "" {
		webhookOpts = append(webhookOpts, cbwebhook.WithUserAgent(cfg.WebhookUserAgent))
	}

	for _, provider := range []callback.Provider{
		cbwebhook.New(webhookOpts...),
		cbrabbitmq.New(),
		cbredis.New(),
		cbawssqs.New(),
		cbkafka.New(),
	} {
		if err := registry.RegisterProvider(provider); err != nil {
			return err
		}
	}
	return nil
}
