package notification

import (
	"influencehub/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module provides the queue-backed Notifier used by the managers.
var Module = fx.Module("notification.notifier",
	fx.Provide(
		NewQueueNotifier,
		func(n *QueueNotifier) Notifier { return n },
	),
)

// Worker registers the dispatch handler on the asynq mux.
var Worker = fx.Module("notification.worker",
	fx.Provide(NewService),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.NotificationDispatch, s.HandleDispatch)
}
