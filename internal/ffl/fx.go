package ffl

import (
	"github.com/rangefront/armory/internal/ffl/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ffl",
	fx.Provide(repository.Provide),
)
