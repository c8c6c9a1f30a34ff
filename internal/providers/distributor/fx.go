package distributor

import (
	"github.com/rangefront/armory/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.distributor",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Client {
	return NewHTTP(Config{
		BaseURL: cfg.DistributorURL,
		APIKey:  cfg.DistributorAPIKey,
	})
}
