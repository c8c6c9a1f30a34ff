package crm

import (
	"github.com/rangefront/armory/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.crm",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Client {
	return NewHTTP(Config{
		BaseURL: cfg.CRMBaseURL,
		APIKey:  cfg.CRMAPIKey,
	})
}
