package main

import (
	"influencehub/pkg/access"
	"influencehub/pkg/celengine"
	"influencehub/pkg/config"
	"influencehub/pkg/db"
	"influencehub/pkg/gen"
	"influencehub/pkg/hashistack/secretmanager"
	"influencehub/pkg/health"
	"influencehub/pkg/logger"
	"influencehub/pkg/metrics"
	"influencehub/pkg/minio"
	"influencehub/pkg/otelcol"
	"influencehub/pkg/profiling"
	"influencehub/pkg/redis"
	"influencehub/pkg/sequence"
	"influencehub/pkg/server"
	"influencehub/pkg/task"
	"influencehub/services/application"
	"influencehub/services/campaign"
	"influencehub/services/content"
	"influencehub/services/notification"
	"influencehub/services/payment"
	scheduler "influencehub/services/task"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		minio.Client,
		gen.Module,
		sequence.Module,
		access.Module,
		celengine.Module,
		metrics.Module,
		notification.Module,
		fx.Provide(func(s *minio.Signer) content.URLResolver { return s }),
		campaign.Module,
		application.Module,
		content.Module,
		payment.Module,
		health.Module,
		server.ProvideHTTPServer,
		scheduler.Module,
		fx.Invoke(
			migrate,
			checkManagers,
		),
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

// checkManagers builds every manager at startup so wiring errors stop the
// process before it reports ready.
func checkManagers(*campaign.Service, *application.Service, *content.Service, *payment.Service) {
	zap.L().Info("lifecycle managers ready")
}
