package campaign

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/celengine"
	"influencehub/pkg/config"
	"influencehub/pkg/db/option"
	"influencehub/pkg/db/pagination"
	"influencehub/pkg/errutil"
	"influencehub/pkg/metrics"
	"influencehub/pkg/repository"
	"influencehub/pkg/sequence"
	"influencehub/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	guard    access.Authorizer
	notifier notification.Notifier
	rules    *celengine.Engine
	metrics  *metrics.Metrics
	now      func() time.Time

	sweepConcurrency int

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Guard    access.Authorizer
	Notifier notification.Notifier `optional:"true"`
	Rules    *celengine.Engine     `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
	Config   *config.Config        `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:               p.DB,
		node:             p.Node,
		seq:              p.Seq,
		guard:            p.Guard,
		notifier:         p.Notifier,
		rules:            p.Rules,
		metrics:          p.Metrics,
		now:              time.Now,
		sweepConcurrency: 8,
		campaign:         repository.ProvideStore[Campaign](p.DB),
	}
	if s.notifier == nil {
		s.notifier = notification.Nop{}
	}
	if p.Config != nil && p.Config.Marketplace.SweepConcurrency > 0 {
		s.sweepConcurrency = p.Config.Marketplace.SweepConcurrency
	}
	return s
}

func resourceOf(c *Campaign) access.Resource {
	return access.Resource{Kind: access.KindCampaign, BrandID: c.BrandID}
}

func (s *Service) CreateCampaign(ctx context.Context, actor access.Actor, p CreateCampaignParams) (*Campaign, error) {
	if !s.guard.Authorize(actor, "create", access.Resource{Kind: access.KindCampaign}) {
		return nil, errutil.Forbidden("only brands can create campaigns", nil)
	}
	if err := s.validate(p.Title, p.Budget.IsNegative(), p.StartDate, p.EndDate, p.MaxInfluencers, p.Approval); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		zap.L().Error("failed to generate campaign code", zap.Error(err))
		return nil, errutil.Internal("failed to generate campaign code", err)
	}

	approval := ApprovalSettings{RequireApproval: true}
	if p.Approval != nil {
		approval = *p.Approval
	}

	c := &Campaign{
		ID:             s.node.Generate().String(),
		BrandID:        actor.ID,
		Code:           code,
		Slug:           slug.Make(p.Title),
		Title:          strings.TrimSpace(p.Title),
		Description:    p.Description,
		Status:         StatusDraft,
		Budget:         p.Budget,
		StartDate:      utc(p.StartDate),
		EndDate:        utc(p.EndDate),
		MaxInfluencers: p.MaxInfluencers,
		Approval:       datatypes.NewJSONType(approval),
		Requirements:   datatypes.JSONMap(p.Requirements),
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.String("brand_id", actor.ID), zap.Error(err))
		return nil, err
	}

	zap.L().Info("campaign created", zap.String("campaign_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

func (s *Service) validate(title string, negativeBudget bool, start, end *time.Time, maxInfluencers int, approval *ApprovalSettings) error {
	var details []errutil.Detail
	if strings.TrimSpace(title) == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "title is required"})
	}
	if negativeBudget {
		details = append(details, errutil.Detail{Field: "budget", Message: "budget must not be negative"})
	}
	if start != nil && end != nil && !end.After(*start) {
		details = append(details, errutil.Detail{Field: "end_date", Message: "end date must be after start date"})
	}
	if maxInfluencers < 0 {
		details = append(details, errutil.Detail{Field: "max_influencers", Message: "max influencers must not be negative"})
	}
	if approval != nil && approval.AutoAcceptRule != "" && s.rules != nil {
		if err := s.rules.Validate(approval.AutoAcceptRule); err != nil {
			details = append(details, errutil.Detail{Field: "auto_accept_rule", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		return errutil.BadRequest("invalid campaign", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaign.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		zap.L().Error("failed to load campaign", zap.String("campaign_id", id), zap.Error(err))
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

func (s *Service) ListCampaigns(ctx context.Context, p ListCampaignsParams) ([]*Campaign, *pagination.PageInfo, error) {
	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}
	items, err := s.campaign.Find(ctx, &Campaign{BrandID: p.BrandID, Status: p.Status}, option.ApplyPagination(page))
	if err != nil {
		zap.L().Error("failed to list campaigns", zap.Error(err))
		return nil, nil, err
	}

	items, info := pagination.BuildCursorPage(items, page, func(c *Campaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return items, info, nil
}

func (s *Service) UpdateCampaign(ctx context.Context, actor access.Actor, id string, p UpdateCampaignParams) (*Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "update", resourceOf(c)) {
		return nil, errutil.Forbidden("campaign belongs to another brand", nil)
	}
	if c.Status.IsTerminal() {
		return nil, errutil.InvalidState("campaign is "+string(c.Status), nil)
	}

	title := c.Title
	if p.Title != nil {
		title = *p.Title
	}
	start, end := c.StartDate, c.EndDate
	if p.StartDate != nil {
		start = p.StartDate
	}
	if p.EndDate != nil {
		end = p.EndDate
	}
	maxInfluencers := c.MaxInfluencers
	if p.MaxInfluencers != nil {
		maxInfluencers = *p.MaxInfluencers
	}
	if err := s.validate(title, p.Budget != nil && p.Budget.IsNegative(), start, end, maxInfluencers, p.Approval); err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.now().UTC()}
	if p.Title != nil {
		updates["title"] = strings.TrimSpace(*p.Title)
		updates["slug"] = slug.Make(*p.Title)
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Budget != nil {
		updates["budget"] = *p.Budget
	}
	if p.StartDate != nil {
		updates["start_date"] = utc(p.StartDate)
	}
	if p.EndDate != nil {
		updates["end_date"] = utc(p.EndDate)
	}
	if p.MaxInfluencers != nil {
		updates["max_influencers"] = *p.MaxInfluencers
	}
	if p.Approval != nil {
		updates["approval"] = datatypes.NewJSONType(*p.Approval)
	}
	if p.Requirements != nil {
		updates["requirements"] = datatypes.JSONMap(p.Requirements)
	}

	// Terminal statuses are excluded so an update racing a completion fails.
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status NOT IN ?", id, []Status{StatusCompleted, StatusCancelled}).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to update campaign", zap.String("campaign_id", id), zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.InvalidState("campaign is no longer editable", nil)
	}

	return s.GetCampaign(ctx, id)
}

// ChangeStatus moves the campaign along the lifecycle. The write is a
// compare-and-swap on the status read, so of two racing changes one fails.
func (s *Service) ChangeStatus(ctx context.Context, actor access.Actor, id string, next Status) (*Campaign, error) {
	if !next.Valid() {
		return nil, errutil.BadRequest("unknown campaign status "+string(next), nil)
	}

	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "change_status", resourceOf(c)) {
		return nil, errutil.Forbidden("campaign belongs to another brand", nil)
	}
	if !CanTransition(c.Status, next) {
		return nil, errutil.InvalidTransition(string(c.Status), string(next))
	}

	ok, err := s.swapStatus(s.db.WithContext(ctx), id, c.Status, next, nil)
	if err != nil {
		zap.L().Error("failed to change campaign status", zap.String("campaign_id", id), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, errutil.Conflict("campaign status changed concurrently", nil)
	}

	s.metrics.RecordTransition("campaign", string(c.Status), string(next))
	s.notifier.Notify(ctx, notification.EventCampaignStatusChanged, map[string]any{
		notification.Recipient: c.BrandID,
		"campaign_id":          c.ID,
		"from":                 string(c.Status),
		"to":                   string(next),
	})

	return s.GetCampaign(ctx, id)
}

func (s *Service) swapStatus(tx *gorm.DB, id string, from, to Status, extra func(*gorm.DB) *gorm.DB) (bool, error) {
	q := tx.Model(&Campaign{}).Where("id = ? AND status = ?", id, from)
	if extra != nil {
		q = extra(q)
	}
	res := q.Updates(map[string]any{"status": to, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) DeleteCampaign(ctx context.Context, actor access.Actor, id string) error {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if !s.guard.Authorize(actor, "delete", resourceOf(c)) {
		return errutil.Forbidden("campaign belongs to another brand", nil)
	}
	if c.Status != StatusDraft {
		return errutil.InvalidState("only draft campaigns can be deleted", nil)
	}

	res := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, StatusDraft).Delete(&Campaign{})
	if res.Error != nil {
		zap.L().Error("failed to delete campaign", zap.String("campaign_id", id), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.InvalidState("only draft campaigns can be deleted", nil)
	}
	return nil
}

// CloneCampaign copies a campaign into a new draft owned by the same brand.
func (s *Service) CloneCampaign(ctx context.Context, actor access.Actor, id, title string) (*Campaign, error) {
	src, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "clone", resourceOf(src)) {
		return nil, errutil.Forbidden("campaign belongs to another brand", nil)
	}
	if strings.TrimSpace(title) == "" {
		title = src.Title + " (copy)"
	}

	approval := src.Approval.Data()
	return s.CreateCampaign(ctx, actor, CreateCampaignParams{
		Title:          title,
		Description:    src.Description,
		Budget:         src.Budget,
		StartDate:      src.StartDate,
		EndDate:        src.EndDate,
		MaxInfluencers: src.MaxInfluencers,
		Approval:       &approval,
		Requirements:   src.Requirements,
	})
}

// ExpireCampaigns completes every ACTIVE or PAUSED campaign whose end date is
// before now. Each campaign is handled on its own: a failure is logged and
// counted and never stops the sweep. Running it twice is harmless.
func (s *Service) ExpireCampaigns(ctx context.Context, now time.Time) (SweepResult, error) {
	now = now.UTC()
	candidates, err := s.campaign.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: []Status{StatusActive, StatusPaused}}),
		option.ApplyOperator(option.Condition{Field: "end_date", Operator: option.LT, Value: now}),
	)
	if err != nil {
		zap.L().Error("failed to scan expired campaigns", zap.Error(err))
		return SweepResult{}, err
	}

	var completed, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.sweepConcurrency)

	for _, c := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}

			ok, err := s.swapStatus(s.db.WithContext(ctx), c.ID, c.Status, StatusCompleted, func(q *gorm.DB) *gorm.DB {
				return q.Where("end_date < ?", now)
			})
			switch {
			case err != nil:
				failed.Add(1)
				zap.L().Error("failed to complete expired campaign", zap.String("campaign_id", c.ID), zap.Error(err))
			case !ok:
				skipped.Add(1)
			default:
				completed.Add(1)
				s.metrics.RecordTransition("campaign", string(c.Status), string(StatusCompleted))
				s.notifier.Notify(ctx, notification.EventCampaignStatusChanged, map[string]any{
					notification.Recipient: c.BrandID,
					"campaign_id":          c.ID,
					"from":                 string(c.Status),
					"to":                   string(StatusCompleted),
					"reason":               "expired",
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{
		Scanned:   len(candidates),
		Completed: int(completed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	s.metrics.RecordSweep("campaign_expiry", "completed", result.Completed)
	s.metrics.RecordSweep("campaign_expiry", "failed", result.Failed)

	zap.L().Info("campaign expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("completed", result.Completed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
