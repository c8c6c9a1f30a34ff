package audit

import (
	"github.com/rangefront/armory/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(service.New),
)
