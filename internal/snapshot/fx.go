package snapshot

import (
	"github.com/rangefront/armory/internal/snapshot/repository"
	"github.com/rangefront/armory/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
