package locks

import "go.uber.org/fx"

var Module = fx.Module("locks",
	fx.Provide(NewLocker),
	fx.Provide(func(l *Locker) Lock { return l }),
)
