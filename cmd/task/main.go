package main

import (
	"influencehub/pkg/access"
	"influencehub/pkg/celengine"
	"influencehub/pkg/config"
	"influencehub/pkg/db"
	"influencehub/pkg/gen"
	"influencehub/pkg/hashistack/secretmanager"
	"influencehub/pkg/logger"
	"influencehub/pkg/metrics"
	"influencehub/pkg/otelcol"
	"influencehub/pkg/redis"
	"influencehub/pkg/sequence"
	"influencehub/pkg/task"
	"influencehub/services/campaign"
	"influencehub/services/notification"
	"influencehub/services/payment"
	scheduler "influencehub/services/task"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker runs notification dispatch and the scheduled sweeps enqueued by
// the controlplane.
func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		gen.Module,
		sequence.Module,
		access.Module,
		celengine.Module,
		metrics.Module,
		notification.Module,
		notification.Worker,
		campaign.Module,
		payment.Module,
		fx.Provide(scheduler.NewService),
		scheduler.Worker,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, log *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: log}
	}
	return fxevent.NopLogger
})
