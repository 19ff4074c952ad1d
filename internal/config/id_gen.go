package config

import "github.com/hookdeck/cbserver/internal/idgen"

type IDGenConfig struct {
	Type           string `yaml:"type" env:"ID_GEN_TYPE" desc:"ID generation type: uuidv4, uuidv7, nanoid. Default: uuidv4"`
	WorkerPrefix   string `yaml:"worker_prefix" env:"ID_GEN_WORKER_PREFIX" desc:"Prefix for worker IDs, joined with an underscore (e.g. 'wrk_123')"`
	DeliveryPrefix string `yaml:"delivery_prefix" env:"ID_GEN_DELIVERY_PREFIX" desc:"Prefix for delivery IDs, joined with an underscore (e.g. 'dlv_123')"`
}

func (c IDGenConfig) ToConfig() idgen.IDGenConfig {
	return idgen.IDGenConfig{
		Type:           c.Type,
		WorkerPrefix:   c.WorkerPrefix,
		DeliveryPrefix: c.DeliveryPrefix,
	}
}
