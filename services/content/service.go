package content

import (
	"context"
	"errors"
	"strings"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/db/option"
	"influencehub/pkg/errutil"
	"influencehub/pkg/metrics"
	"influencehub/pkg/repository"
	"influencehub/services/application"
	"influencehub/services/campaign"
	"influencehub/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// URLResolver turns a stored file reference into a URL the caller can fetch.
type URLResolver interface {
	ResolveURL(ctx context.Context, stored string) (string, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	guard    access.Authorizer
	notifier notification.Notifier
	resolver URLResolver
	metrics  *metrics.Metrics
	now      func() time.Time

	campaign    repository.Repository[campaign.Campaign]
	participant repository.Repository[application.Participant]
	submission  repository.Repository[Submission]
	file        repository.Repository[File]
	post        repository.Repository[PublishedPost]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Guard    access.Authorizer
	Notifier notification.Notifier `optional:"true"`
	Resolver URLResolver           `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:          p.DB,
		node:        p.Node,
		guard:       p.Guard,
		notifier:    p.Notifier,
		resolver:    p.Resolver,
		metrics:     p.Metrics,
		now:         time.Now,
		campaign:    repository.ProvideStore[campaign.Campaign](p.DB),
		participant: repository.ProvideStore[application.Participant](p.DB),
		submission:  repository.ProvideStore[Submission](p.DB),
		file:        repository.ProvideStore[File](p.DB),
		post:        repository.ProvideStore[PublishedPost](p.DB),
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

func (s *Service) getSubmission(ctx context.Context, id string) (*Submission, error) {
	sub, err := s.submission.FindOne(ctx, &Submission{ID: id})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("content submission not found", nil)
	}
	return sub, nil
}

// authorized loads the submission with its campaign and checks action.
func (s *Service) authorized(ctx context.Context, actor access.Actor, id, action string) (*Submission, *campaign.Campaign, error) {
	sub, err := s.getSubmission(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.loadCampaign(ctx, sub.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	res := access.Resource{Kind: access.KindSubmission, BrandID: c.BrandID, OwnerID: sub.InfluencerID}
	if !s.guard.Authorize(actor, action, res) {
		return nil, nil, errutil.Forbidden("not allowed to "+strings.ReplaceAll(action, "_", " ")+" this submission", nil)
	}
	return sub, c, nil
}

func newFiles(node *snowflake.Node, contentID string, in []FileParams) ([]*File, error) {
	files := make([]*File, 0, len(in))
	for _, f := range in {
		if strings.TrimSpace(f.FileURL) == "" {
			return nil, errutil.BadRequest("file url is required", nil)
		}
		if f.FileSize < 0 {
			return nil, errutil.BadRequest("file size must not be negative", nil)
		}
		files = append(files, &File{
			ID:           node.Generate().String(),
			ContentID:    contentID,
			FileURL:      f.FileURL,
			FileType:     f.FileType,
			FileSize:     f.FileSize,
			ThumbnailURL: f.ThumbnailURL,
		})
	}
	return files, nil
}

// CreateSubmission records the one submission an ACTIVE participant may make
// per campaign.
func (s *Service) CreateSubmission(ctx context.Context, actor access.Actor, campaignID string, p CreateSubmissionParams) (*Submission, error) {
	if !s.guard.Authorize(actor, "create", access.Resource{Kind: access.KindSubmission}) {
		return nil, errutil.Forbidden("only influencers can submit content", nil)
	}

	c, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	member, err := s.participant.FindOne(ctx, &application.Participant{
		CampaignID:   campaignID,
		InfluencerID: actor.ID,
		Status:       application.ParticipantActive,
	})
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errutil.Forbidden("not a participant of this campaign", nil)
	}
	if !c.IsOpen() {
		return nil, errutil.InvalidState("campaign is not active", nil)
	}
	if p.Amount.IsNegative() {
		return nil, errutil.BadRequest("amount must not be negative", nil)
	}

	existing, err := s.submission.FindOne(ctx, &Submission{CampaignID: campaignID, InfluencerID: actor.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("already submitted", nil)
	}

	sub := &Submission{
		ID:           s.node.Generate().String(),
		CampaignID:   campaignID,
		InfluencerID: actor.ID,
		Title:        p.Title,
		Description:  p.Description,
		ContentType:  p.ContentType,
		Platform:     p.Platform,
		Amount:       p.Amount,
		Status:       StatusPending,
		SubmittedAt:  s.now().UTC(),
	}
	files, err := newFiles(s.node, sub.ID, p.Files)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.submission.WithTrx(tx).Create(ctx, sub); err != nil {
			return err
		}
		return s.file.WithTrx(tx).BatchCreate(ctx, files)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errutil.Conflict("already submitted", nil)
	}
	if err != nil {
		zap.L().Error("failed to create submission", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}

	s.notifier.Notify(ctx, notification.EventSubmissionCreated, map[string]any{
		notification.Recipient: c.BrandID,
		"content_id":           sub.ID,
		"campaign_id":          campaignID,
		"influencer_id":        actor.ID,
	})
	return sub, nil
}

func (s *Service) GetSubmission(ctx context.Context, actor access.Actor, id string) (*Submission, error) {
	sub, _, err := s.authorized(ctx, actor, id, "read")
	return sub, err
}

// ListSubmissions scopes influencers to their own submissions and brands to
// campaigns they own.
func (s *Service) ListSubmissions(ctx context.Context, actor access.Actor, p ListSubmissionsParams) ([]*Submission, error) {
	query := &Submission{CampaignID: p.CampaignID, InfluencerID: p.InfluencerID, Status: p.Status}

	switch actor.Role {
	case access.RoleInfluencer:
		query.InfluencerID = actor.ID
	case access.RoleBrand:
		if p.CampaignID == "" {
			return nil, errutil.BadRequest("campaign id is required", nil)
		}
		c, err := s.loadCampaign(ctx, p.CampaignID)
		if err != nil {
			return nil, err
		}
		if !s.guard.Authorize(actor, "read", access.Resource{Kind: access.KindSubmission, BrandID: c.BrandID}) {
			return nil, errutil.Forbidden("campaign belongs to another brand", nil)
		}
	case access.RoleAdmin:
	default:
		return nil, errutil.Forbidden("not allowed to list submissions", nil)
	}

	return s.submission.Find(ctx, query, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
}

func (s *Service) UpdateSubmission(ctx context.Context, actor access.Actor, id string, p UpdateSubmissionParams) (*Submission, error) {
	sub, _, err := s.authorized(ctx, actor, id, "update")
	if err != nil {
		return nil, err
	}
	if !sub.Status.Editable() {
		return nil, errutil.InvalidState("submission can only be edited while pending or rejected", nil)
	}

	updates := map[string]any{"updated_at": s.now().UTC()}
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.ContentType != nil {
		updates["content_type"] = *p.ContentType
	}
	if p.Platform != nil {
		updates["platform"] = *p.Platform
	}
	if p.Amount != nil {
		if p.Amount.IsNegative() {
			return nil, errutil.BadRequest("amount must not be negative", nil)
		}
		updates["amount"] = *p.Amount
	}

	res := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusRejected}).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to update submission", zap.String("content_id", id), zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.InvalidState("submission can only be edited while pending or rejected", nil)
	}
	return s.getSubmission(ctx, id)
}

// UpdateStatus is the brand's review step. PAID is reserved for payment
// processing.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id string, next Status, feedback string) (*Submission, error) {
	if !next.Valid() {
		return nil, errutil.BadRequest("unknown content status "+string(next), nil)
	}
	sub, _, err := s.authorized(ctx, actor, id, "review")
	if err != nil {
		return nil, err
	}
	if next == StatusPaid {
		return nil, errutil.InvalidState("content is marked paid only by payment processing", nil)
	}
	if !CanTransition(sub.Status, next) {
		return nil, errutil.InvalidTransition(string(sub.Status), string(next))
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":     next,
		"feedback":   feedback,
		"updated_at": now,
	}
	switch next {
	case StatusApproved:
		updates["approved_at"] = now
	case StatusCompleted:
		updates["completed_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ? AND status = ?", id, sub.Status).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to update submission status", zap.String("content_id", id), zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("submission status changed concurrently", nil)
	}

	s.metrics.RecordTransition("submission", string(sub.Status), string(next))
	s.notifier.Notify(ctx, notification.EventSubmissionStatusChanged, map[string]any{
		notification.Recipient: sub.InfluencerID,
		"content_id":           id,
		"from":                 string(sub.Status),
		"to":                   string(next),
		"feedback":             feedback,
	})

	return s.getSubmission(ctx, id)
}

// DeleteSubmission removes a PENDING or REJECTED submission with its files
// and performance row.
func (s *Service) DeleteSubmission(ctx context.Context, actor access.Actor, id string) error {
	sub, _, err := s.authorized(ctx, actor, id, "delete")
	if err != nil {
		return err
	}
	if !sub.Status.Editable() {
		return errutil.InvalidState("submission can only be deleted while pending or rejected", nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusRejected}).Delete(&Submission{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.InvalidState("submission can only be deleted while pending or rejected", nil)
		}
		if err := tx.Where("content_id = ?", id).Delete(&File{}).Error; err != nil {
			return err
		}
		return tx.Where("content_id = ?", id).Delete(&Performance{}).Error
	})
}

func (s *Service) AddFiles(ctx context.Context, actor access.Actor, id string, in []FileParams) ([]*File, error) {
	sub, _, err := s.authorized(ctx, actor, id, "add_files")
	if err != nil {
		return nil, err
	}
	if !sub.Status.AcceptsFiles() {
		return nil, errutil.InvalidState("files cannot be added to "+strings.ToLower(string(sub.Status))+" content", nil)
	}
	if len(in) == 0 {
		return nil, errutil.BadRequest("no files given", nil)
	}

	files, err := newFiles(s.node, id, in)
	if err != nil {
		return nil, err
	}
	if err := s.file.BatchCreate(ctx, files); err != nil {
		zap.L().Error("failed to add content files", zap.String("content_id", id), zap.Error(err))
		return nil, err
	}
	return files, nil
}

// GetFiles lists the submission's files with URLs resolved for download.
func (s *Service) GetFiles(ctx context.Context, actor access.Actor, id string) ([]*File, error) {
	if _, _, err := s.authorized(ctx, actor, id, "read"); err != nil {
		return nil, err
	}

	files, err := s.file.Find(ctx, &File{ContentID: id}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
	if err != nil {
		return nil, err
	}
	if s.resolver == nil {
		return files, nil
	}

	for _, f := range files {
		if f.FileURL, err = s.resolver.ResolveURL(ctx, f.FileURL); err != nil {
			return nil, errutil.BadGateway("failed to resolve file url", err)
		}
		if f.ThumbnailURL, err = s.resolver.ResolveURL(ctx, f.ThumbnailURL); err != nil {
			return nil, errutil.BadGateway("failed to resolve thumbnail url", err)
		}
	}
	return files, nil
}

func (s *Service) CreatePublishedPost(ctx context.Context, actor access.Actor, id string, p PublishPostParams) (*PublishedPost, error) {
	sub, _, err := s.authorized(ctx, actor, id, "publish")
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusApproved {
		return nil, errutil.InvalidState("content must be approved before publishing", nil)
	}
	if strings.TrimSpace(p.PostURL) == "" || strings.TrimSpace(p.Platform) == "" {
		return nil, errutil.BadRequest("platform and post url are required", nil)
	}

	publishedAt := p.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = s.now()
	}
	post := &PublishedPost{
		ID:          s.node.Generate().String(),
		ContentID:   id,
		Platform:    p.Platform,
		PostURL:     p.PostURL,
		PublishedAt: publishedAt.UTC(),
		Status:      PostPublished,
	}
	if err := s.post.Create(ctx, post); err != nil {
		zap.L().Error("failed to create published post", zap.String("content_id", id), zap.Error(err))
		return nil, err
	}
	return post, nil
}

func (s *Service) ListPosts(ctx context.Context, actor access.Actor, id string) ([]*PublishedPost, error) {
	if _, _, err := s.authorized(ctx, actor, id, "read"); err != nil {
		return nil, err
	}
	return s.post.Find(ctx, &PublishedPost{ContentID: id}, option.WithSortBy(option.QuerySortBy{
		SortBy: "published_at", OrderBy: "desc", Allow: map[string]bool{"published_at": true},
	}))
}

// UpdatePerformance stores m as the submission's latest metrics. Every call
// replaces the previous snapshot entirely.
func (s *Service) UpdatePerformance(ctx context.Context, actor access.Actor, id string, m Metrics) (*Performance, error) {
	if _, _, err := s.authorized(ctx, actor, id, "report_performance"); err != nil {
		return nil, err
	}
	if err := validateMetrics(m); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	perf := &Performance{
		ID:         s.node.Generate().String(),
		ContentID:  id,
		Metrics:    m,
		RecordedAt: now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns(metricColumns),
	}).Create(perf).Error
	if err != nil {
		zap.L().Error("failed to upsert content performance", zap.String("content_id", id), zap.Error(err))
		return nil, err
	}

	var out Performance
	if err := s.db.WithContext(ctx).Where("content_id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePostPerformance is UpdatePerformance for a single published post.
func (s *Service) UpdatePostPerformance(ctx context.Context, actor access.Actor, postID string, m Metrics) (*PostPerformance, error) {
	post, err := s.post.FindOne(ctx, &PublishedPost{ID: postID})
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, errutil.NotFound("published post not found", nil)
	}
	if _, _, err := s.authorized(ctx, actor, post.ContentID, "report_performance"); err != nil {
		return nil, err
	}
	if err := validateMetrics(m); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	perf := &PostPerformance{
		ID:         s.node.Generate().String(),
		PostID:     postID,
		Metrics:    m,
		RecordedAt: now,
		UpdatedAt:  now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns(metricColumns),
	}).Create(perf).Error
	if err != nil {
		zap.L().Error("failed to upsert post performance", zap.String("post_id", postID), zap.Error(err))
		return nil, err
	}

	var out PostPerformance
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func validateMetrics(m Metrics) error {
	for _, v := range []int64{m.Views, m.Likes, m.Comments, m.Shares, m.Saves, m.Reach, m.Impressions} {
		if v < 0 {
			return errutil.BadRequest("metrics must not be negative", nil)
		}
	}
	return nil
}
