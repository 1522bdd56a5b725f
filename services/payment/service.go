package payment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/config"
	"influencehub/pkg/db/option"
	"influencehub/pkg/db/pagination"
	"influencehub/pkg/errutil"
	"influencehub/pkg/metrics"
	"influencehub/pkg/repository"
	"influencehub/pkg/sequence"
	"influencehub/services/campaign"
	"influencehub/services/content"
	"influencehub/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("influencehub/services/payment")

const (
	defaultFeeRate           = "0.05"
	defaultSettlementTimeout = 30 * time.Second
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	guard    access.Authorizer
	settler  Settler
	notifier notification.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	feeRate           decimal.Decimal
	settlementTimeout time.Duration
	concurrency       int

	payment    repository.Repository[Payment]
	earnings   repository.Repository[Earnings]
	submission repository.Repository[content.Submission]
	campaign   repository.Repository[campaign.Campaign]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Guard    access.Authorizer
	Settler  Settler               `optional:"true"`
	Notifier notification.Notifier `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
	Config   *config.Config        `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	s := &Service{
		db:                p.DB,
		node:              p.Node,
		seq:               p.Seq,
		guard:             p.Guard,
		settler:           p.Settler,
		notifier:          p.Notifier,
		metrics:           p.Metrics,
		now:               time.Now,
		feeRate:           decimal.RequireFromString(defaultFeeRate),
		settlementTimeout: defaultSettlementTimeout,
		concurrency:       8,
		payment:           repository.ProvideStore[Payment](p.DB),
		earnings:          repository.ProvideStore[Earnings](p.DB),
		submission:        repository.ProvideStore[content.Submission](p.DB),
		campaign:          repository.ProvideStore[campaign.Campaign](p.DB),
	}
	if s.settler == nil {
		s.settler = NewInternalSettler()
	}
	if s.notifier == nil {
		s.notifier = notification.Nop{}
	}

	if p.Config != nil {
		mp := p.Config.Marketplace
		if mp.PlatformFeeRate != "" {
			rate, err := decimal.NewFromString(mp.PlatformFeeRate)
			if err != nil {
				return nil, fmt.Errorf("invalid platform fee rate %q: %w", mp.PlatformFeeRate, err)
			}
			s.feeRate = rate
		}
		if mp.SettlementTimeout > 0 {
			s.settlementTimeout = mp.SettlementTimeout
		}
		if mp.SweepConcurrency > 0 {
			s.concurrency = mp.SweepConcurrency
		}
	}
	if s.feeRate.IsNegative() || s.feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("platform fee rate %s must be in [0, 1)", s.feeRate)
	}
	if !withinScale(s.feeRate) {
		return nil, fmt.Errorf("platform fee rate %s has more than %d decimal places", s.feeRate, MaxScale)
	}
	return s, nil
}

// MaxScale is the number of decimal places accepted for amounts and the fee
// rate. Their product fits the 8 places stored for fee and net.
const MaxScale = 4

func withinScale(d decimal.Decimal) bool {
	return d.Truncate(MaxScale).Equal(d)
}

// SplitAmount derives the platform fee and the influencer's net from amount.
// The fee is exact; nothing is rounded.
func SplitAmount(amount, rate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = amount.Mul(rate)
	return fee, amount.Sub(fee)
}

func spanFields(span trace.Span) []zap.Field {
	sc := span.SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func resourceOf(p *Payment) access.Resource {
	return access.Resource{Kind: access.KindPayment, BrandID: p.BrandID, OwnerID: p.InfluencerID}
}

func (s *Service) findPayment(ctx context.Context, id string) (*Payment, error) {
	p, err := s.payment.FindOne(ctx, &Payment{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}
	return p, nil
}

func (s *Service) CreatePayment(ctx context.Context, actor access.Actor, p CreatePaymentParams) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.Create")
	defer span.End()
	fields := spanFields(span)

	if !s.guard.Authorize(actor, "create", access.Resource{Kind: access.KindPayment, BrandID: actor.ID}) {
		return nil, errutil.Forbidden("only brands can create payments", nil)
	}
	if p.InfluencerID == "" {
		return nil, errutil.BadRequest("influencer id is required", nil)
	}
	if !p.Amount.IsPositive() {
		return nil, errutil.BadRequest("amount must be greater than zero", nil)
	}
	if !withinScale(p.Amount) {
		return nil, errutil.BadRequest(fmt.Sprintf("amount has more than %d decimal places", MaxScale), nil)
	}

	var contentID *string
	brandID := actor.ID
	if p.ContentID != "" {
		sub, err := s.submission.FindOne(ctx, &content.Submission{ID: p.ContentID})
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, errutil.NotFound("content submission not found", nil)
		}
		if sub.InfluencerID != p.InfluencerID {
			return nil, errutil.BadRequest("content does not belong to influencer", nil)
		}
		c, err := s.campaign.FindOne(ctx, &campaign.Campaign{ID: sub.CampaignID})
		if err != nil {
			return nil, err
		}
		if c == nil || !s.guard.Authorize(actor, "create", access.Resource{Kind: access.KindPayment, BrandID: c.BrandID}) {
			return nil, errutil.Forbidden("campaign belongs to another brand", nil)
		}
		if sub.Status != content.StatusCompleted {
			return nil, errutil.InvalidState("content must be completed before payment", nil)
		}
		active, err := s.payment.FindOne(ctx, &Payment{ActiveContentID: &p.ContentID})
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, errutil.Conflict("content already has an active payment", nil)
		}
		contentID = &p.ContentID
		brandID = c.BrandID
	}

	ref, err := s.seq.NextPaymentCode(ctx)
	if err != nil {
		zap.L().Error("failed to generate payment reference", append(fields, zap.Error(err))...)
		return nil, err
	}

	fee, net := SplitAmount(p.Amount, s.feeRate)
	pay := &Payment{
		ID:              s.node.Generate().String(),
		Reference:       ref,
		ContentID:       contentID,
		ActiveContentID: contentID,
		InfluencerID:    p.InfluencerID,
		BrandID:         brandID,
		Amount:          p.Amount,
		PlatformFee:     fee,
		NetAmount:       net,
		Description:     p.Description,
		Status:          StatusPending,
	}
	if err := s.payment.Create(ctx, pay); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("content already has an active payment", nil)
		}
		span.RecordError(err)
		zap.L().Error("failed to create payment", append(fields, zap.Error(err))...)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.id", pay.ID))
	s.metrics.RecordPayment(string(StatusPending))
	s.notifier.Notify(ctx, notification.EventPaymentCreated, map[string]any{
		notification.Recipient: pay.InfluencerID,
		"payment_id":           pay.ID,
		"reference":            pay.Reference,
		"net_amount":           pay.NetAmount.String(),
	})
	zap.L().Info("payment created", append(fields, zap.String("payment_id", pay.ID), zap.String("amount", pay.Amount.String()))...)
	return pay, nil
}

// ProcessPayment moves a PENDING payment through settlement. The
// PENDING→PROCESSING claim commits before the settler is called, so a crash
// or timeout leaves the payment PROCESSING for ReconcileProcessing to finish.
func (s *Service) ProcessPayment(ctx context.Context, actor access.Actor, id string, p ProcessPaymentParams) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.Process", trace.WithAttributes(attribute.String("payment.id", id)))
	defer span.End()
	fields := append(spanFields(span), zap.String("payment_id", id))

	pay, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "process", resourceOf(pay)) {
		return nil, errutil.Forbidden("payment belongs to another brand", nil)
	}
	if pay.Status != StatusPending {
		return nil, errutil.InvalidTransition(string(pay.Status), string(StatusProcessing))
	}

	updates := map[string]any{"status": StatusProcessing, "updated_at": s.now().UTC()}
	if p.TransactionID != "" {
		updates["transaction_id"] = p.TransactionID
	}
	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to claim payment", append(fields, zap.Error(res.Error))...)
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("payment is already being processed", nil)
	}
	s.metrics.RecordTransition("payment", string(StatusPending), string(StatusProcessing))

	if p.TransactionID != "" {
		pay.TransactionID = p.TransactionID
	}
	pay.Status = StatusProcessing

	if _, err := s.settleAndRecord(ctx, pay); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zap.L().Warn("payment settlement did not complete", append(fields, zap.Error(err))...)
		return nil, err
	}
	return s.findPayment(ctx, id)
}

// settleAndRecord settles a PROCESSING payment and records the outcome. It
// returns the status the payment ended in. A transient settler error leaves
// the payment PROCESSING with the attempt counted and is returned.
func (s *Service) settleAndRecord(ctx context.Context, pay *Payment) (Status, error) {
	sctx, cancel := context.WithTimeout(ctx, s.settlementTimeout)
	start := s.now()
	settlement, err := s.settler.Settle(sctx, pay)
	cancel()

	switch {
	case err == nil:
		s.metrics.ObserveSettlement("success", s.now().Sub(start))
		return StatusCompleted, s.complete(ctx, pay, settlement)
	case errors.Is(err, ErrDeclined):
		s.metrics.ObserveSettlement("declined", s.now().Sub(start))
		return StatusFailed, s.fail(ctx, pay, err.Error())
	}

	s.metrics.ObserveSettlement("error", s.now().Sub(start))
	recErr := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", pay.ID, StatusProcessing).
		Updates(map[string]any{
			"settlement_attempts": gorm.Expr("settlement_attempts + ?", 1),
			"failure_reason":      err.Error(),
			"updated_at":          s.now().UTC(),
		}).Error
	if recErr != nil {
		zap.L().Error("failed to record settlement attempt", zap.String("payment_id", pay.ID), zap.Error(recErr))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return StatusProcessing, errutil.Timeout("settlement timed out, payment remains processing", err)
	}
	return StatusProcessing, errutil.BadGateway("settlement failed, payment remains processing", err)
}

// complete finalises a settled payment in one transaction. The status CAS
// guarantees the earnings credit happens once even if two settlements race.
func (s *Service) complete(ctx context.Context, pay *Payment, settlement Settlement) error {
	now := s.now().UTC()
	txID := settlement.TransactionID
	if txID == "" {
		txID = pay.TransactionID
	}
	if txID == "" {
		var err error
		if txID, err = GenerateTransactionID(now); err != nil {
			return err
		}
	}

	credited := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Payment{}).
			Where("id = ? AND status = ?", pay.ID, StatusProcessing).
			Updates(map[string]any{
				"status":              StatusCompleted,
				"transaction_id":      txID,
				"processed_at":        now,
				"failure_reason":      "",
				"settlement_attempts": gorm.Expr("settlement_attempts + ?", 1),
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if pay.ContentID != nil {
			ok, err := content.MarkPaid(ctx, tx, *pay.ContentID, now)
			if err != nil {
				return err
			}
			if !ok {
				return errutil.InvalidState("linked content is no longer completed", nil)
			}
		}

		if err := s.credit(tx, pay.InfluencerID, pay.NetAmount, now); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		zap.L().Error("failed to complete payment", zap.String("payment_id", pay.ID), zap.Error(err))
		return err
	}
	if !credited {
		return errutil.Conflict("payment was completed concurrently", nil)
	}

	net, _ := pay.NetAmount.Float64()
	s.metrics.RecordTransition("payment", string(StatusProcessing), string(StatusCompleted))
	s.metrics.RecordPayment(string(StatusCompleted))
	s.metrics.RecordPayout(net)
	s.notifier.Notify(ctx, notification.EventPaymentCompleted, map[string]any{
		notification.Recipient: pay.InfluencerID,
		"payment_id":           pay.ID,
		"transaction_id":       txID,
		"net_amount":           pay.NetAmount.String(),
	})
	return nil
}

// credit adds net to the user's earnings, creating the row on first payout.
func (s *Service) credit(tx *gorm.DB, userID string, net decimal.Decimal, now time.Time) error {
	row := &Earnings{
		ID:           s.node.Generate().String(),
		UserID:       userID,
		TotalEarned:  net,
		TotalPaid:    net,
		LastPayoutAt: &now,
		UpdatedAt:    now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_earned":   gorm.Expr("user_earnings.total_earned + ?", net),
			"total_paid":     gorm.Expr("user_earnings.total_paid + ?", net),
			"last_payout_at": now,
			"updated_at":     now,
		}),
	}).Create(row).Error
}

func (s *Service) fail(ctx context.Context, pay *Payment, reason string) error {
	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", pay.ID, StatusProcessing).
		Updates(map[string]any{
			"status":              StatusFailed,
			"failure_reason":      reason,
			"active_content_id":   nil,
			"settlement_attempts": gorm.Expr("settlement_attempts + ?", 1),
			"updated_at":          s.now().UTC(),
		})
	if res.Error != nil {
		zap.L().Error("failed to mark payment failed", zap.String("payment_id", pay.ID), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("payment status changed concurrently", nil)
	}

	s.metrics.RecordTransition("payment", string(StatusProcessing), string(StatusFailed))
	s.metrics.RecordPayment(string(StatusFailed))
	s.notifier.Notify(ctx, notification.EventPaymentFailed, map[string]any{
		notification.Recipient: pay.BrandID,
		"payment_id":           pay.ID,
		"reason":               reason,
	})
	return nil
}

func (s *Service) CancelPayment(ctx context.Context, actor access.Actor, id string) (*Payment, error) {
	pay, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "cancel", resourceOf(pay)) {
		return nil, errutil.Forbidden("payment belongs to another brand", nil)
	}
	if pay.Status != StatusPending {
		return nil, errutil.InvalidTransition(string(pay.Status), string(StatusCancelled))
	}

	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":            StatusCancelled,
			"active_content_id": nil,
			"updated_at":        s.now().UTC(),
		})
	if res.Error != nil {
		zap.L().Error("failed to cancel payment", zap.String("payment_id", id), zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("payment status changed concurrently", nil)
	}

	s.metrics.RecordTransition("payment", string(StatusPending), string(StatusCancelled))
	s.metrics.RecordPayment(string(StatusCancelled))
	return s.findPayment(ctx, id)
}

// ReconcileProcessing re-settles payments left PROCESSING for longer than
// olderThan. Payments are handled independently and the sweep never stops on
// a single failure.
func (s *Service) ReconcileProcessing(ctx context.Context, now time.Time, olderThan time.Duration) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "payment.Reconcile")
	defer span.End()
	fields := spanFields(span)

	cutoff := now.UTC().Add(-olderThan)
	stuck, err := s.payment.Find(ctx, &Payment{Status: StatusProcessing},
		option.ApplyOperator(option.Condition{Field: "updated_at", Operator: option.LT, Value: cutoff}),
	)
	if err != nil {
		zap.L().Error("failed to scan processing payments", append(fields, zap.Error(err))...)
		return SweepResult{}, err
	}

	var completed, declined, retrying, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, pay := range stuck {
		g.Go(func() error {
			if ctx.Err() != nil {
				retrying.Add(1)
				return nil
			}

			status, err := s.settleAndRecord(ctx, pay)
			switch {
			case err == nil && status == StatusCompleted:
				completed.Add(1)
			case err == nil:
				declined.Add(1)
			case status == StatusProcessing:
				retrying.Add(1)
			default:
				failed.Add(1)
				zap.L().Error("failed to reconcile payment", zap.String("payment_id", pay.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{
		Scanned:   len(stuck),
		Completed: int(completed.Load()),
		Declined:  int(declined.Load()),
		Retrying:  int(retrying.Load()),
		Failed:    int(failed.Load()),
	}
	s.metrics.RecordSweep("payment_reconcile", "completed", result.Completed)
	s.metrics.RecordSweep("payment_reconcile", "declined", result.Declined)
	s.metrics.RecordSweep("payment_reconcile", "retrying", result.Retrying)
	s.metrics.RecordSweep("payment_reconcile", "failed", result.Failed)

	zap.L().Info("payment reconciliation finished", append(fields,
		zap.Int("scanned", result.Scanned),
		zap.Int("completed", result.Completed),
		zap.Int("declined", result.Declined),
		zap.Int("retrying", result.Retrying),
		zap.Int("failed", result.Failed),
	)...)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (s *Service) GetPayment(ctx context.Context, actor access.Actor, id string) (*Payment, error) {
	pay, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.Authorize(actor, "read", resourceOf(pay)) {
		return nil, errutil.Forbidden("not allowed to read this payment", nil)
	}
	return pay, nil
}

// scope narrows a payment query to what actor may see.
func scope(actor access.Actor, query *Payment) error {
	switch actor.Role {
	case access.RoleBrand:
		query.BrandID = actor.ID
	case access.RoleInfluencer:
		query.InfluencerID = actor.ID
	case access.RoleAdmin:
	default:
		return errutil.Forbidden("not allowed to list payments", nil)
	}
	return nil
}

func (s *Service) ListPayments(ctx context.Context, actor access.Actor, p ListPaymentsParams) ([]*Payment, *pagination.PageInfo, error) {
	query := &Payment{BrandID: p.BrandID, InfluencerID: p.InfluencerID, Status: p.Status}
	if err := scope(actor, query); err != nil {
		return nil, nil, err
	}

	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}
	items, err := s.payment.Find(ctx, query, option.ApplyPagination(page))
	if err != nil {
		zap.L().Error("failed to list payments", zap.Error(err))
		return nil, nil, err
	}

	items, info := pagination.BuildCursorPage(items, page, func(p *Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return items, info, nil
}

// GetPaymentStats groups the actor's payments by status.
func (s *Service) GetPaymentStats(ctx context.Context, actor access.Actor) (*Stats, error) {
	query := &Payment{}
	if err := scope(actor, query); err != nil {
		return nil, err
	}

	var rows []StatusStat
	err := s.db.WithContext(ctx).Model(&Payment{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(net_amount), 0) AS net_amount").
		Where(query).
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		zap.L().Error("failed to aggregate payments", zap.String("actor_id", actor.ID), zap.Error(err))
		return nil, err
	}

	stats := &Stats{ByStatus: rows, TotalPaid: decimal.Zero}
	for _, r := range rows {
		stats.Count += r.Count
		if r.Status == StatusCompleted {
			stats.TotalPaid = r.NetAmount
		}
	}
	return stats, nil
}

// GetEarnings returns the user's earnings. A user never paid gets a zero row.
func (s *Service) GetEarnings(ctx context.Context, userID string) (*Earnings, error) {
	e, err := s.earnings.FindOne(ctx, &Earnings{UserID: userID})
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = &Earnings{UserID: userID}
	}

	var pending decimal.NullDecimal
	err = s.db.WithContext(ctx).Model(&Payment{}).
		Select("SUM(net_amount)").
		Where("influencer_id = ? AND status IN ?", userID, []Status{StatusPending, StatusProcessing}).
		Row().Scan(&pending)
	if err != nil {
		return nil, err
	}
	e.PendingAmount = decimal.Zero
	if pending.Valid {
		e.PendingAmount = pending.Decimal
	}
	return e, nil
}
