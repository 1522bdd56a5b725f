package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"influencehub/pkg/db/option"
	"influencehub/pkg/errutil"
	"influencehub/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service persists dispatched notifications and serves the inbox.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[Notification]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[Notification](p.DB),
	}
}

// HandleDispatch is the asynq handler for taskname.NotificationDispatch.
func (s *Service) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var p DispatchPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.UserID == "" || p.Event == "" {
		zap.L().Warn("dropping notification without recipient", zap.String("event", p.Event))
		return nil
	}

	n := &Notification{
		ID:      s.node.Generate().String(),
		UserID:  p.UserID,
		Event:   p.Event,
		Payload: datatypes.JSONMap(p.Payload),
	}
	if !p.OccurredAt.IsZero() {
		n.CreatedAt = p.OccurredAt
	}

	if err := s.repo.Create(ctx, n); err != nil {
		zap.L().Error("failed to store notification", zap.String("event", p.Event), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) ListNotifications(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	return s.repo.Find(ctx, &Notification{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

// MarkRead stamps readAt on a notification owned by userID. Already read
// notifications keep their first timestamp.
func (s *Service) MarkRead(ctx context.Context, userID, id string, now time.Time) error {
	n, err := s.repo.FindOne(ctx, &Notification{ID: id})
	if err != nil {
		return err
	}
	if n == nil || n.UserID != userID {
		return errutil.NotFound("notification not found", nil)
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.repo.Update(ctx, id, map[string]any{"read_at": now})
}
