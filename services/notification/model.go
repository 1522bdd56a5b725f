package notification

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventCampaignStatusChanged   = "campaign.status_changed"
	EventApplicationSubmitted    = "application.submitted"
	EventApplicationResponded    = "application.responded"
	EventSubmissionCreated       = "submission.created"
	EventSubmissionStatusChanged = "submission.status_changed"
	EventPaymentCreated          = "payment.created"
	EventPaymentCompleted        = "payment.completed"
	EventPaymentFailed           = "payment.failed"
)

// Notification is the inbox row written for each dispatched event.
type Notification struct {
	ID        string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID    string            `gorm:"column:user_id;index;type:varchar(32);not null"`
	Event     string            `gorm:"column:event;type:varchar(64);not null"`
	Payload   datatypes.JSONMap `gorm:"column:payload"`
	ReadAt    *time.Time        `gorm:"column:read_at"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// DispatchPayload is the asynq task body of taskname.NotificationDispatch.
type DispatchPayload struct {
	Event      string         `json:"event"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}
