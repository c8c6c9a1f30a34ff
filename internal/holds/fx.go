package holds

import (
	"github.com/rangefront/armory/internal/holds/service"
	"go.uber.org/fx"
)

var Module = fx.Module("holds",
	fx.Provide(service.New),
)
