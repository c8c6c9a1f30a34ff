package outbox

import (
	"github.com/rangefront/armory/internal/outbox/repository"
	"github.com/rangefront/armory/internal/outbox/service"
	"github.com/rangefront/armory/internal/outbox/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(worker.New),
	fx.Invoke(func(*worker.Worker) {}),
)
