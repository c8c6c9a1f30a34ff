package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FulfillmentConfig carries the live-tunable orchestration settings: external
// call timeouts, the order-number minting shape and the outbox cadence. It is
// loaded from fulfillment.yml and hot-reloaded on file change.
type FulfillmentConfig struct {
	PaymentTimeout     time.Duration `mapstructure:"paymentTimeout"`
	DistributorTimeout time.Duration `mapstructure:"distributorTimeout"`
	CRMTimeout         time.Duration `mapstructure:"crmTimeout"`
	CatalogTimeout     time.Duration `mapstructure:"catalogTimeout"`

	MintWidth     int    `mapstructure:"mintWidth"`
	TestMintWidth int    `mapstructure:"testMintWidth"`
	TestPrefix    string `mapstructure:"testPrefix"`

	OutboxPollInterval time.Duration `mapstructure:"outboxPollInterval"`
	OutboxBatchSize    int           `mapstructure:"outboxBatchSize"`
	OutboxMaxAttempts  int           `mapstructure:"outboxMaxAttempts"`
}

func DefaultFulfillmentConfig() FulfillmentConfig {
	return FulfillmentConfig{
		PaymentTimeout:     15 * time.Second,
		DistributorTimeout: 10 * time.Second,
		CRMTimeout:         10 * time.Second,
		CatalogTimeout:     3 * time.Second,
		MintWidth:          7,
		TestMintWidth:      5,
		TestPrefix:         "T",
		OutboxPollInterval: 5 * time.Second,
		OutboxBatchSize:    20,
		OutboxMaxAttempts:  8,
	}
}

// FulfillmentConfigHolder exposes the current config through an atomic.Value
// so request handlers never observe a half-applied reload.
type FulfillmentConfigHolder struct {
	current atomic.Value // holds FulfillmentConfig
}

func NewFulfillmentConfigHolder(log *zap.Logger) (*FulfillmentConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("fulfillment")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/armory/config") // Volume-mounted config
	v.AddConfigPath("/etc/armory")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("ARMORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &FulfillmentConfigHolder{}

	load := func() FulfillmentConfig {
		cfg := DefaultFulfillmentConfig()
		if err := v.UnmarshalKey("fulfillment", &cfg); err != nil {
			log.Warn("fulfillment config unmarshal failed, keeping defaults", zap.Error(err))
			return DefaultFulfillmentConfig()
		}
		return cfg.withDefaults()
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultFulfillmentConfig())
		return holder, nil
	}

	holder.current.Store(load())

	v.OnConfigChange(func(e fsnotify.Event) {
		holder.current.Store(load())
		log.Info("fulfillment config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *FulfillmentConfigHolder) Current() FulfillmentConfig {
	if v, ok := h.current.Load().(FulfillmentConfig); ok {
		return v
	}
	return DefaultFulfillmentConfig()
}

// withDefaults fills zero values left by a partial config file.
func (c FulfillmentConfig) withDefaults() FulfillmentConfig {
	def := DefaultFulfillmentConfig()
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = def.PaymentTimeout
	}
	if c.DistributorTimeout <= 0 {
		c.DistributorTimeout = def.DistributorTimeout
	}
	if c.CRMTimeout <= 0 {
		c.CRMTimeout = def.CRMTimeout
	}
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = def.CatalogTimeout
	}
	if c.MintWidth <= 0 {
		c.MintWidth = def.MintWidth
	}
	if c.TestMintWidth <= 0 {
		c.TestMintWidth = def.TestMintWidth
	}
	if strings.TrimSpace(c.TestPrefix) == "" {
		c.TestPrefix = def.TestPrefix
	}
	if c.OutboxPollInterval <= 0 {
		c.OutboxPollInterval = def.OutboxPollInterval
	}
	if c.OutboxBatchSize <= 0 {
		c.OutboxBatchSize = def.OutboxBatchSize
	}
	if c.OutboxMaxAttempts <= 0 {
		c.OutboxMaxAttempts = def.OutboxMaxAttempts
	}
	return c
}
