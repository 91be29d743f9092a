package competition

import (
	"go.uber.org/fx"
)

var Module = fx.Module("competition.module",
	fx.Provide(
		NewService,
		NewMatcher,
		NewStatusHandler,
		NewSweepHandler,
	),
	fx.Invoke(registerTasks),
)
