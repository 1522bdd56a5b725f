package notification

import (
	"context"
	"encoding/json"
	"time"

	"influencehub/pkg/task"
	"influencehub/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notification

// Notifier delivers lifecycle events. Delivery is fire-and-forget: failures
// are logged and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// Recipient is the payload key naming the user the event is addressed to.
const Recipient = "user_id"

type QueueNotifier struct {
	enqueuer task.Enqueuer
	now      func() time.Time
}

func NewQueueNotifier(enqueuer task.Enqueuer) *QueueNotifier {
	return &QueueNotifier{enqueuer: enqueuer, now: time.Now}
}

func (n *QueueNotifier) Notify(ctx context.Context, event string, payload map[string]any) {
	userID, _ := payload[Recipient].(string)
	body, err := json.Marshal(DispatchPayload{
		Event:      event,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		zap.L().Warn("failed to encode notification", zap.String("event", event), zap.Error(err))
		return
	}

	t := asynq.NewTask(taskname.NotificationDispatch, body)
	if _, err := n.enqueuer.Enqueue(ctx, t, asynq.Queue(task.QueueLow), asynq.MaxRetry(5)); err != nil {
		zap.L().Warn("failed to enqueue notification",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]any) {}
