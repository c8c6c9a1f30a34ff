package compliance

import (
	"github.com/rangefront/armory/internal/compliance/repository"
	"github.com/rangefront/armory/internal/compliance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("compliance",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
