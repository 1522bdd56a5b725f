package task

import (
	"influencehub/pkg/taskname"
	"influencehub/services/campaign"
	"influencehub/services/payment"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module runs the cron scheduler that enqueues the sweeps.
var Module = fx.Module("task.scheduler",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(StartScheduler),
)

// Worker executes enqueued sweeps against the campaign and payment services.
var Worker = fx.Module("task.worker",
	fx.Provide(
		func(s *campaign.Service) CampaignSweeper { return s },
		func(s *payment.Service) PaymentReconciler { return s },
	),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.CampaignExpiryRun, s.HandleCampaignExpiry)
	mux.HandleFunc(taskname.PaymentReconcileRun, s.HandlePaymentReconcile)
}
