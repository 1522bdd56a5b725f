package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/config"
	"influencehub/pkg/errutil"
	"influencehub/pkg/sequence"
	"influencehub/services/campaign"
	"influencehub/services/content"
	"influencehub/services/notification"
	"influencehub/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	brand      = access.Brand("brand-1")
	otherBrand = access.Brand("brand-2")
	inf1       = access.Influencer("inf-1")
	inf2       = access.Influencer("inf-2")
)

type fixture struct {
	svc *Service
	db  *gorm.DB
}

func newFixture(t *testing.T, settler Settler, notifier notification.Notifier) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &campaign.Campaign{}, &content.Submission{}, &Payment{}, &Earnings{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Seq:      sequence.NewStatic(),
		Guard:    access.Default(),
		Settler:  settler,
		Notifier: notifier,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, db: db}
}

// completedContent stores a COMPLETED submission by influencer in a campaign
// owned by brand.
func (f *fixture) completedContent(t *testing.T, influencer string) *content.Submission {
	t.Helper()
	c := &campaign.Campaign{
		ID:      fmt.Sprintf("cmp-%d", time.Now().UnixNano()),
		BrandID: brand.ID,
		Title:   "Launch",
		Status:  campaign.StatusActive,
		Budget:  decimal.NewFromInt(1000),
	}
	require.NoError(t, f.db.Create(c).Error)

	sub := &content.Submission{
		ID:           c.ID + "-sub",
		CampaignID:   c.ID,
		InfluencerID: influencer,
		Amount:       decimal.NewFromInt(200),
		Status:       content.StatusCompleted,
		SubmittedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *fixture) submission(t *testing.T, id string) *content.Submission {
	t.Helper()
	var sub content.Submission
	require.NoError(t, f.db.First(&sub, "id = ?", id).Error)
	return &sub
}

func requireStatus(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()
	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, code, be.Status())
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestSplitAmount(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	for _, tc := range []struct{ amount, fee, net string }{
		{"200", "10", "190"},
		{"99.99", "4.9995", "94.9905"},
		{"0.10", "0.005", "0.095"},
		{"1234.56", "61.728", "1172.832"},
	} {
		amount := decimal.RequireFromString(tc.amount)
		fee, net := SplitAmount(amount, rate)
		require.True(t, fee.Equal(amount.Mul(rate)), "fee %s for %s", fee, tc.amount)
		requireDecimal(t, tc.fee, fee)
		requireDecimal(t, tc.net, net)
		requireDecimal(t, tc.amount, fee.Add(net))
	}
}

func TestCreatePaymentStoresExactFee(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.RequireFromString("99.99")})
	require.NoError(t, err)

	var stored Payment
	require.NoError(t, f.db.First(&stored, "id = ?", pay.ID).Error)
	require.True(t, stored.PlatformFee.Equal(stored.Amount.Mul(decimal.RequireFromString("0.05"))), "fee %s", stored.PlatformFee)
	requireDecimal(t, "4.9995", stored.PlatformFee)
	requireDecimal(t, "94.9905", stored.NetAmount)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.RequireFromString("1.23456")})
	requireStatus(t, err, errutil.StatusBadRequest)
}

func TestNewServiceFeeRateFromConfig(t *testing.T) {
	db := testutil.NewTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	cfg := &config.Config{Marketplace: config.Marketplace{PlatformFeeRate: "0.1"}}
	svc, err := NewService(ServiceParams{DB: db, Node: node, Guard: access.Default(), Config: cfg})
	require.NoError(t, err)
	requireDecimal(t, "0.1", svc.feeRate)

	cfg.Marketplace.PlatformFeeRate = "abc"
	_, err = NewService(ServiceParams{DB: db, Node: node, Guard: access.Default(), Config: cfg})
	require.Error(t, err)

	cfg.Marketplace.PlatformFeeRate = "1.5"
	_, err = NewService(ServiceParams{DB: db, Node: node, Guard: access.Default(), Config: cfg})
	require.Error(t, err)

	cfg.Marketplace.PlatformFeeRate = "0.012345"
	_, err = NewService(ServiceParams{DB: db, Node: node, Guard: access.Default(), Config: cfg})
	require.Error(t, err)
}

func TestPaymentLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := notification.NewMockNotifier(ctrl)
	n.EXPECT().Notify(gomock.Any(), notification.EventPaymentCreated, gomock.Any())
	n.EXPECT().Notify(gomock.Any(), notification.EventPaymentCompleted, gomock.Any()).
		Do(func(_ context.Context, _ string, payload map[string]any) {
			require.Equal(t, inf1.ID, payload[notification.Recipient])
		})

	f := newFixture(t, nil, n)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{
		ContentID:    sub.ID,
		InfluencerID: inf1.ID,
		Amount:       decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, pay.Status)
	require.NotEmpty(t, pay.Reference)
	requireDecimal(t, "10", pay.PlatformFee)
	requireDecimal(t, "190", pay.NetAmount)

	earnings, err := f.svc.GetEarnings(ctx, inf1.ID)
	require.NoError(t, err)
	requireDecimal(t, "0", earnings.TotalEarned)
	requireDecimal(t, "190", earnings.PendingAmount)

	done, err := f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotEmpty(t, done.TransactionID)
	require.NotNil(t, done.ProcessedAt)
	require.Equal(t, 1, done.SettlementAttempts)

	paid := f.submission(t, sub.ID)
	require.Equal(t, content.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	earnings, err = f.svc.GetEarnings(ctx, inf1.ID)
	require.NoError(t, err)
	requireDecimal(t, "190", earnings.TotalEarned)
	requireDecimal(t, "190", earnings.TotalPaid)
	requireDecimal(t, "0", earnings.PendingAmount)
	require.NotNil(t, earnings.LastPayoutAt)

	_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusInvalidState)

	earnings, err = f.svc.GetEarnings(ctx, inf1.ID)
	require.NoError(t, err)
	requireDecimal(t, "190", earnings.TotalEarned)
}

func TestEarningsAccumulate(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for _, amount := range []int64{100, 300} {
		pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(amount)})
		require.NoError(t, err)
		_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{TransactionID: fmt.Sprintf("bank-%d", amount)})
		require.NoError(t, err)
	}

	earnings, err := f.svc.GetEarnings(ctx, inf1.ID)
	require.NoError(t, err)
	requireDecimal(t, "380", earnings.TotalEarned)
	requireDecimal(t, "380", earnings.TotalPaid)

	none, err := f.svc.GetEarnings(ctx, inf2.ID)
	require.NoError(t, err)
	require.Equal(t, inf2.ID, none.UserID)
	requireDecimal(t, "0", none.TotalEarned)
}

func TestProcessKeepsProvidedTransactionID(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	done, err := f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{TransactionID: "wire-42"})
	require.NoError(t, err)
	require.Equal(t, "wire-42", done.TransactionID)
}

func TestCreatePaymentErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	_, err := f.svc.CreatePayment(ctx, inf1, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.Zero})
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: "missing", InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusNotFound)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf2.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = f.svc.CreatePayment(ctx, otherBrand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusConflict)

	pending := f.completedContent(t, inf2.ID)
	require.NoError(t, f.db.Model(&content.Submission{}).Where("id = ?", pending.ID).Update("status", content.StatusApproved).Error)
	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: pending.ID, InfluencerID: inf2.ID, Amount: decimal.NewFromInt(10)})
	requireStatus(t, err, errutil.StatusInvalidState)
}

func TestActiveContentKeyIsUnique(t *testing.T) {
	f := newFixture(t, nil, nil)
	id := "content-1"
	first := &Payment{ID: "p1", ContentID: &id, ActiveContentID: &id, InfluencerID: inf1.ID, BrandID: brand.ID, Status: StatusPending}
	second := &Payment{ID: "p2", ContentID: &id, ActiveContentID: &id, InfluencerID: inf1.ID, BrandID: brand.ID, Status: StatusPending}

	require.NoError(t, f.db.Create(first).Error)
	require.ErrorIs(t, f.db.Create(second).Error, gorm.ErrDuplicatedKey)

	released := &Payment{ID: "p3", ContentID: &id, InfluencerID: inf1.ID, BrandID: brand.ID, Status: StatusFailed}
	require.NoError(t, f.db.Create(released).Error)
}

func TestProcessPaymentGuards(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.ProcessPayment(ctx, brand, "missing", ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusNotFound)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(ctx, otherBrand, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusForbidden)
	_, err = f.svc.ProcessPayment(ctx, inf1, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusForbidden)

	got, err := f.svc.GetPayment(ctx, inf1, pay.ID)
	require.NoError(t, err)
	require.Equal(t, pay.ID, got.ID)
	_, err = f.svc.GetPayment(ctx, inf2, pay.ID)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestAdminCannotActForBrand(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	admin := access.Actor{ID: "admin-1", Role: access.RoleAdmin}
	sub := f.completedContent(t, inf1.ID)

	_, err := f.svc.CreatePayment(ctx, admin, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	requireStatus(t, err, errutil.StatusForbidden)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	require.Equal(t, brand.ID, pay.BrandID)

	_, err = f.svc.ProcessPayment(ctx, admin, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusForbidden)
	_, err = f.svc.CancelPayment(ctx, admin, pay.ID)
	requireStatus(t, err, errutil.StatusForbidden)

	got, err := f.svc.GetPayment(ctx, admin, pay.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	done, err := f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
}

func TestConcurrentProcessCreditsOnce(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code := errutil.StatusOf(err)
		require.Contains(t, []errutil.CoreStatus{errutil.StatusInvalidState, errutil.StatusConflict}, code)
	}
	require.Equal(t, 1, succeeded)

	earnings, err := f.svc.GetEarnings(ctx, inf1.ID)
	require.NoError(t, err)
	requireDecimal(t, "190", earnings.TotalEarned)
}

func TestDeclinedSettlementFailsPayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := NewMockSettler(ctrl)
	settler.EXPECT().Settle(gomock.Any(), gomock.Any()).
		Return(Settlement{}, fmt.Errorf("insufficient balance: %w", ErrDeclined))

	f := newFixture(t, settler, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	failed, err := f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Contains(t, failed.FailureReason, "insufficient balance")
	require.Nil(t, failed.ActiveContentID)
	require.Equal(t, content.StatusCompleted, f.submission(t, sub.ID).Status)

	// the content can be paid again once the failed payment released it
	f.svc.settler = NewInternalSettler()
	retry, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, brand, retry.ID, ProcessPaymentParams{})
	require.NoError(t, err)
	require.Equal(t, content.StatusPaid, f.submission(t, sub.ID).Status)
}

func TestTransientSettlementStaysProcessing(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := NewMockSettler(ctrl)
	settler.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(Settlement{}, errors.New("connection reset"))

	f := newFixture(t, settler, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusBadGateway)

	got, err := f.svc.GetPayment(ctx, brand, pay.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
	require.Equal(t, 1, got.SettlementAttempts)
	require.NotNil(t, got.ActiveContentID)

	_, err = f.svc.CancelPayment(ctx, brand, pay.ID)
	requireStatus(t, err, errutil.StatusInvalidState)
}

func TestSettlementTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := NewMockSettler(ctrl)
	settler.EXPECT().Settle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *Payment) (Settlement, error) {
			<-ctx.Done()
			return Settlement{}, ctx.Err()
		})

	f := newFixture(t, settler, nil)
	f.svc.settlementTimeout = 20 * time.Millisecond
	ctx := context.Background()

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusTimeout)

	got, err := f.svc.GetPayment(ctx, brand, pay.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
}

func TestReconcileProcessing(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := NewMockSettler(ctrl)

	f := newFixture(t, settler, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	// first attempt fails transiently, reconciliation then succeeds
	gomock.InOrder(
		settler.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(Settlement{}, errors.New("provider unavailable")),
		settler.EXPECT().Settle(gomock.Any(), gomock.Any()).Return(Settlement{TransactionID: "prov-9"}, nil),
	)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	require.Error(t, err)

	res, err := f.svc.ReconcileProcessing(ctx, time.Now(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, res.Scanned)

	res, err = f.svc.ReconcileProcessing(ctx, time.Now().Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 1, Completed: 1}, res)

	got, err := f.svc.GetPayment(ctx, brand, pay.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "prov-9", got.TransactionID)
	require.Equal(t, 2, got.SettlementAttempts)
	require.Equal(t, content.StatusPaid, f.submission(t, sub.ID).Status)

	res, err = f.svc.ReconcileProcessing(ctx, time.Now().Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	require.Zero(t, res.Scanned)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	sub := f.completedContent(t, inf1.ID)

	pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	_, err = f.svc.CancelPayment(ctx, otherBrand, pay.ID)
	requireStatus(t, err, errutil.StatusForbidden)

	cancelled, err := f.svc.CancelPayment(ctx, brand, pay.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.ActiveContentID)

	_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
	requireStatus(t, err, errutil.StatusInvalidState)

	_, err = f.svc.CreatePayment(ctx, brand, CreatePaymentParams{ContentID: sub.ID, InfluencerID: inf1.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
}

func TestListPaymentsAndStats(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for i, amount := range []int64{100, 200, 300} {
		pay, err := f.svc.CreatePayment(ctx, brand, CreatePaymentParams{InfluencerID: inf1.ID, Amount: decimal.NewFromInt(amount)})
		require.NoError(t, err)
		if i == 0 {
			_, err = f.svc.ProcessPayment(ctx, brand, pay.ID, ProcessPaymentParams{})
			require.NoError(t, err)
		}
	}
	_, err := f.svc.CreatePayment(ctx, otherBrand, CreatePaymentParams{InfluencerID: inf2.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)

	page, info, err := f.svc.ListPayments(ctx, brand, ListPaymentsParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	rest, info, err := f.svc.ListPayments(ctx, brand, ListPaymentsParams{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)

	theirs, _, err := f.svc.ListPayments(ctx, inf2, ListPaymentsParams{})
	require.NoError(t, err)
	require.Len(t, theirs, 1)

	stats, err := f.svc.GetPaymentStats(ctx, brand)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Count)
	requireDecimal(t, "95", stats.TotalPaid)

	byStatus := map[Status]StatusStat{}
	for _, s := range stats.ByStatus {
		byStatus[s.Status] = s
	}
	require.EqualValues(t, 2, byStatus[StatusPending].Count)
	requireDecimal(t, "500", byStatus[StatusPending].Amount)
	requireDecimal(t, "475", byStatus[StatusPending].NetAmount)
}

func TestGenerateTransactionID(t *testing.T) {
	id, err := GenerateTransactionID(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Regexp(t, `^TXN-20261015-[0-9A-F]{6}$`, id)
}
