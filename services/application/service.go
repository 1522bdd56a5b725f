package application

import (
	"context"
	"errors"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/celengine"
	"influencehub/pkg/db/option"
	"influencehub/pkg/errutil"
	"influencehub/pkg/metrics"
	"influencehub/pkg/repository"
	"influencehub/services/campaign"
	"influencehub/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	guard    access.Authorizer
	notifier notification.Notifier
	rules    *celengine.Engine
	metrics  *metrics.Metrics
	now      func() time.Time

	campaign    repository.Repository[campaign.Campaign]
	application repository.Repository[Application]
	participant repository.Repository[Participant]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Guard    access.Authorizer
	Notifier notification.Notifier `optional:"true"`
	Rules    *celengine.Engine     `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:          p.DB,
		node:        p.Node,
		guard:       p.Guard,
		notifier:    p.Notifier,
		rules:       p.Rules,
		metrics:     p.Metrics,
		now:         time.Now,
		campaign:    repository.ProvideStore[campaign.Campaign](p.DB),
		application: repository.ProvideStore[Application](p.DB),
		participant: repository.ProvideStore[Participant](p.DB),
	}
	if s.notifier == nil {
		s.notifier = notification.Nop{}
	}
	return s
}

func (s *Service) loadCampaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

func resourceOf(c *campaign.Campaign, a *Application) access.Resource {
	return access.Resource{Kind: access.KindApplication, BrandID: c.BrandID, OwnerID: a.InfluencerID}
}

// Apply records an influencer's application to an ACTIVE campaign. Campaigns
// that do not require approval, or whose auto-accept rule matches, accept the
// application immediately.
func (s *Service) Apply(ctx context.Context, actor access.Actor, campaignID string, p ApplyParams) (*Application, error) {
	if !s.guard.Authorize(actor, "create", access.Resource{Kind: access.KindApplication}) {
		return nil, errutil.Forbidden("only influencers can apply", nil)
	}

	c, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		return nil, errutil.InvalidState("campaign is not accepting applications", nil)
	}
	if p.ProposedRate.IsNegative() {
		return nil, errutil.BadRequest("proposed rate must not be negative", nil)
	}

	existing, err := s.application.FindOne(ctx, &Application{CampaignID: campaignID, InfluencerID: actor.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("already applied", nil)
	}
	member, err := s.participant.FindOne(ctx, &Participant{CampaignID: campaignID, InfluencerID: actor.ID})
	if err != nil {
		return nil, err
	}
	if member != nil {
		return nil, errutil.Conflict("already applied", nil)
	}

	now := s.now().UTC()
	app := &Application{
		ID:              s.node.Generate().String(),
		CampaignID:      campaignID,
		InfluencerID:    actor.ID,
		Status:          StatusPending,
		Message:         p.Message,
		ProposedRate:    p.ProposedRate,
		ApplicationData: p.ApplicationData,
		AppliedAt:       now,
	}
	autoAccept := s.shouldAutoAccept(c, app)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.application.WithTrx(tx).Create(ctx, app); err != nil {
			return err
		}
		if !autoAccept {
			return nil
		}

		full, err := s.isFull(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if full {
			zap.L().Info("campaign full, leaving application pending", zap.String("campaign_id", c.ID))
			autoAccept = false
			return nil
		}
		return s.accept(ctx, tx, app, "", now)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errutil.Conflict("already applied", nil)
	}
	if err != nil {
		zap.L().Error("failed to create application",
			zap.String("campaign_id", campaignID),
			zap.String("influencer_id", actor.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if autoAccept {
		s.metrics.RecordApplication("auto_accepted")
		s.notifier.Notify(ctx, notification.EventApplicationResponded, map[string]any{
			notification.Recipient: app.InfluencerID,
			"application_id":       app.ID,
			"campaign_id":          app.CampaignID,
			"status":               string(StatusAccepted),
		})
	} else {
		s.metrics.RecordApplication("pending")
	}
	s.notifier.Notify(ctx, notification.EventApplicationSubmitted, map[string]any{
		notification.Recipient: c.BrandID,
		"application_id":       app.ID,
		"campaign_id":          app.CampaignID,
		"influencer_id":        app.InfluencerID,
	})

	return app, nil
}

// shouldAutoAccept never fails the application: a broken rule leaves it
// pending for manual review.
func (s *Service) shouldAutoAccept(c *campaign.Campaign, app *Application) bool {
	settings := c.Approval.Data()
	if !settings.RequireApproval {
		return true
	}
	if settings.AutoAcceptRule == "" || s.rules == nil {
		return false
	}

	data := map[string]any(app.ApplicationData)
	if data == nil {
		data = map[string]any{}
	}
	rate, _ := app.ProposedRate.Float64()
	ok, err := s.rules.Evaluate(settings.AutoAcceptRule, map[string]any{
		celengine.VarApplication:  data,
		celengine.VarProposedRate: rate,
		celengine.VarCampaign: map[string]any{
			"id":              c.ID,
			"budget":          c.Budget.InexactFloat64(),
			"max_influencers": c.MaxInfluencers,
		},
	})
	if err != nil {
		zap.L().Warn("auto accept rule failed",
			zap.String("campaign_id", c.ID),
			zap.String("rule", settings.AutoAcceptRule),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *Service) isFull(ctx context.Context, tx *gorm.DB, campaignID string) (bool, error) {
	var c campaign.Campaign
	if err := tx.WithContext(ctx).Scopes(option.LockingUpdate).Where("id = ?", campaignID).First(&c).Error; err != nil {
		return false, err
	}
	if c.MaxInfluencers <= 0 {
		return false, nil
	}
	n, err := s.participant.WithTrx(tx).Count(ctx, &Participant{CampaignID: campaignID, Status: ParticipantActive})
	if err != nil {
		return false, err
	}
	return !c.HasCapacity(n), nil
}

// accept marks the application ACCEPTED and creates the participant in tx.
// The participant insert ignores an existing row, so repeating it is safe.
func (s *Service) accept(ctx context.Context, tx *gorm.DB, app *Application, message string, now time.Time) error {
	res := tx.WithContext(ctx).Model(&Application{}).
		Where("id = ? AND status = ?", app.ID, StatusPending).
		Updates(map[string]any{
			"status":           StatusAccepted,
			"response_message": message,
			"responded_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("application already responded", nil)
	}
	app.Status = StatusAccepted
	app.ResponseMessage = message
	app.RespondedAt = &now

	return s.ensureParticipant(ctx, tx, app, now)
}

func (s *Service) ensureParticipant(ctx context.Context, tx *gorm.DB, app *Application, now time.Time) error {
	p := &Participant{
		ID:            s.node.Generate().String(),
		CampaignID:    app.CampaignID,
		InfluencerID:  app.InfluencerID,
		ApplicationID: app.ID,
		Status:        ParticipantActive,
		JoinedAt:      now,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "influencer_id"}},
		DoNothing: true,
	}).Create(p).Error
}

// UpdateApplicationStatus answers a PENDING application. Answers are final:
// repeating the same answer is a no-op, changing it is an invalid transition.
func (s *Service) UpdateApplicationStatus(ctx context.Context, actor access.Actor, applicationID string, next Status, message string) (*Application, error) {
	if next != StatusAccepted && next != StatusRejected {
		return nil, errutil.BadRequest("status must be ACCEPTED or REJECTED", nil)
	}

	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	c, err := s.loadCampaign(ctx, app.CampaignID)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "respond", resourceOf(c, app)) {
		return nil, errutil.Forbidden("application belongs to another brand's campaign", nil)
	}

	now := s.now().UTC()

	if app.Status == next {
		if next == StatusAccepted {
			if err := s.ensureParticipant(ctx, s.db, app, now); err != nil {
				zap.L().Error("failed to ensure participant", zap.String("application_id", app.ID), zap.Error(err))
				return nil, err
			}
		}
		return app, nil
	}
	if app.Status != StatusPending {
		return nil, errutil.InvalidTransition(string(app.Status), string(next))
	}

	switch next {
	case StatusAccepted:
		if c.Status.IsTerminal() {
			return nil, errutil.InvalidState("campaign is "+string(c.Status), nil)
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			full, err := s.isFull(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if full {
				return errutil.InvalidState("campaign has reached its influencer limit", nil)
			}
			return s.accept(ctx, tx, app, message, now)
		})
	case StatusRejected:
		res := s.db.WithContext(ctx).Model(&Application{}).
			Where("id = ? AND status = ?", app.ID, StatusPending).
			Updates(map[string]any{
				"status":           StatusRejected,
				"response_message": message,
				"responded_at":     now,
			})
		err = res.Error
		if err == nil && res.RowsAffected == 0 {
			err = errutil.Conflict("application already responded", nil)
		}
		if err == nil {
			app.Status = StatusRejected
			app.ResponseMessage = message
			app.RespondedAt = &now
		}
	}
	if err != nil {
		zap.L().Warn("failed to respond to application",
			zap.String("application_id", app.ID),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordApplication(string(next))
	s.metrics.RecordTransition("application", string(StatusPending), string(next))
	s.notifier.Notify(ctx, notification.EventApplicationResponded, map[string]any{
		notification.Recipient: app.InfluencerID,
		"application_id":       app.ID,
		"campaign_id":          app.CampaignID,
		"status":               string(next),
	})

	return app, nil
}

func (s *Service) getApplication(ctx context.Context, id string) (*Application, error) {
	app, err := s.application.FindOne(ctx, &Application{ID: id})
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, errutil.NotFound("application not found", nil)
	}
	return app, nil
}

func (s *Service) GetApplication(ctx context.Context, actor access.Actor, id string) (*Application, error) {
	app, err := s.getApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.loadCampaign(ctx, app.CampaignID)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "read", resourceOf(c, app)) {
		return nil, errutil.Forbidden("not allowed to view this application", nil)
	}
	return app, nil
}

// ListApplications returns a campaign's applications to its brand, newest
// first, optionally filtered by status.
func (s *Service) ListApplications(ctx context.Context, actor access.Actor, campaignID string, status Status) ([]*Application, error) {
	c, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "read", access.Resource{Kind: access.KindApplication, BrandID: c.BrandID}) {
		return nil, errutil.Forbidden("campaign belongs to another brand", nil)
	}
	return s.application.Find(ctx, &Application{CampaignID: campaignID, Status: status},
		option.WithSortBy(option.QuerySortBy{SortBy: "applied_at", OrderBy: "desc", Allow: map[string]bool{"applied_at": true}}),
	)
}

func (s *Service) ListParticipants(ctx context.Context, campaignID string) ([]*Participant, error) {
	return s.participant.Find(ctx, &Participant{CampaignID: campaignID, Status: ParticipantActive},
		option.WithSortBy(option.QuerySortBy{SortBy: "joined_at", OrderBy: "asc", Allow: map[string]bool{"joined_at": true}}),
	)
}

// WithdrawApplication deletes the caller's own application while it is
// still PENDING.
func (s *Service) WithdrawApplication(ctx context.Context, actor access.Actor, id string) error {
	app, err := s.getApplication(ctx, id)
	if err != nil {
		return err
	}
	if !s.guard.Authorize(actor, "withdraw", access.Resource{Kind: access.KindApplication, OwnerID: app.InfluencerID}) {
		return errutil.Forbidden("application belongs to another influencer", nil)
	}
	if app.Status != StatusPending {
		return errutil.InvalidState("only pending applications can be withdrawn", nil)
	}

	res := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, StatusPending).Delete(&Application{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.InvalidState("only pending applications can be withdrawn", nil)
	}
	return nil
}
