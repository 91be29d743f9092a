package distribution

import (
	"go.uber.org/fx"
)

var Module = fx.Module("distribution.module",
	fx.Provide(
		NewDBPointLedger,
		func(l *DBPointLedger) PointLedger { return l },
		NewService,
	),
)
