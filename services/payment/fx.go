package payment

import "go.uber.org/fx"

var Module = fx.Module("payment.service",
	fx.Provide(
		NewInternalSettler,
		NewService,
	),
)
