package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"influencehub/pkg/access"
	"influencehub/pkg/celengine"
	"influencehub/pkg/errutil"
	"influencehub/pkg/sequence"
	"influencehub/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	brand   = access.Brand("brand-1")
	other   = access.Brand("brand-2")
	creator = access.Influencer("inf-1")
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Campaign{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	rules, err := celengine.New()
	require.NoError(t, err)

	s := NewService(ServiceParams{
		DB:    db,
		Node:  node,
		Seq:   sequence.NewStatic(),
		Guard: access.Default(),
		Rules: rules,
	})
	return s, db
}

func requireStatus(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()
	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, code, be.Status())
}

func createCampaign(t *testing.T, s *Service, status Status) *Campaign {
	t.Helper()
	end := time.Now().Add(30 * 24 * time.Hour)
	c, err := s.CreateCampaign(context.Background(), brand, CreateCampaignParams{
		Title:   "Summer Launch",
		Budget:  decimal.NewFromInt(1000),
		EndDate: &end,
	})
	require.NoError(t, err)
	if status != StatusDraft {
		require.NoError(t, s.db.Model(&Campaign{}).Where("id = ?", c.ID).Update("status", status).Error)
		c.Status = status
	}
	return c
}

func TestCreateCampaignStartsInDraft(t *testing.T) {
	s, _ := newTestService(t)

	c := createCampaign(t, s, StatusDraft)
	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, "brand-1", c.BrandID)
	require.Equal(t, "summer-launch", c.Slug)
	require.True(t, strings.HasPrefix(c.Code, "CMP-"))
	require.True(t, c.Approval.Data().RequireApproval)

	got, err := s.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, got.Budget.Equal(decimal.NewFromInt(1000)))
}

func TestCreateCampaignRequiresBrand(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.CreateCampaign(context.Background(), creator, CreateCampaignParams{Title: "x"})
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestCreateCampaignValidation(t *testing.T) {
	s, _ := newTestService(t)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := s.CreateCampaign(context.Background(), brand, CreateCampaignParams{
		Title:     " ",
		Budget:    decimal.NewFromInt(-1),
		StartDate: &start,
		EndDate:   &end,
		Approval:  &ApprovalSettings{AutoAcceptRule: "proposed_rate +"},
	})
	requireStatus(t, err, errutil.StatusBadRequest)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 4)
}

func TestGetCampaignNotFound(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.GetCampaign(context.Background(), "missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestChangeStatusFollowsTransitionTable(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				c := createCampaign(t, s, from)

				got, err := s.ChangeStatus(ctx, brand, c.ID, to)
				if CanTransition(from, to) {
					require.NoError(t, err)
					require.Equal(t, to, got.Status)
					return
				}

				requireStatus(t, err, errutil.StatusInvalidState)
				var be errutil.BaseError
				require.True(t, errors.As(err, &be))
				require.Equal(t, string(from), be.Details[0].Message)
				require.Equal(t, string(to), be.Details[1].Message)

				current, err := s.GetCampaign(ctx, c.ID)
				require.NoError(t, err)
				require.Equal(t, from, current.Status)
			})
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
	require.False(t, StatusPaused.IsTerminal())
	require.False(t, Status("ARCHIVED").Valid())
}

func TestChangeStatusRejectsOtherBrand(t *testing.T) {
	s, _ := newTestService(t)
	c := createCampaign(t, s, StatusDraft)

	_, err := s.ChangeStatus(context.Background(), other, c.ID, StatusActive)
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = s.ChangeStatus(context.Background(), brand, c.ID, Status("ARCHIVED"))
	requireStatus(t, err, errutil.StatusBadRequest)
}

func TestAdminCannotChangeCampaigns(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	admin := access.Actor{ID: "admin-1", Role: access.RoleAdmin}
	c := createCampaign(t, s, StatusDraft)

	_, err := s.ChangeStatus(ctx, admin, c.ID, StatusActive)
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = s.CreateCampaign(ctx, admin, CreateCampaignParams{Title: "Admin launch"})
	requireStatus(t, err, errutil.StatusForbidden)

	current, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
	require.Equal(t, brand.ID, current.BrandID)
}

func TestSwapStatusIsCompareAndSwap(t *testing.T) {
	s, db := newTestService(t)
	c := createCampaign(t, s, StatusActive)

	ok, err := s.swapStatus(db, c.ID, StatusActive, StatusPaused, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// A second writer still holding the stale ACTIVE read loses.
	ok, err = s.swapStatus(db, c.ID, StatusActive, StatusCancelled, nil)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)
}

func TestDeleteCampaignOnlyDraft(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	active := createCampaign(t, s, StatusActive)
	requireStatus(t, s.DeleteCampaign(ctx, brand, active.ID), errutil.StatusInvalidState)

	draft := createCampaign(t, s, StatusDraft)
	requireStatus(t, s.DeleteCampaign(ctx, other, draft.ID), errutil.StatusForbidden)
	require.NoError(t, s.DeleteCampaign(ctx, brand, draft.ID))

	_, err := s.GetCampaign(ctx, draft.ID)
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestUpdateCampaign(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	c := createCampaign(t, s, StatusActive)

	title := "Autumn Launch"
	budget := decimal.NewFromInt(2500)
	got, err := s.UpdateCampaign(ctx, brand, c.ID, UpdateCampaignParams{Title: &title, Budget: &budget})
	require.NoError(t, err)
	require.Equal(t, "Autumn Launch", got.Title)
	require.Equal(t, "autumn-launch", got.Slug)
	require.True(t, got.Budget.Equal(budget))

	_, err = s.UpdateCampaign(ctx, other, c.ID, UpdateCampaignParams{Title: &title})
	requireStatus(t, err, errutil.StatusForbidden)

	done := createCampaign(t, s, StatusCompleted)
	_, err = s.UpdateCampaign(ctx, brand, done.ID, UpdateCampaignParams{Title: &title})
	requireStatus(t, err, errutil.StatusInvalidState)
}

func TestCloneCampaign(t *testing.T) {
	s, _ := newTestService(t)
	src := createCampaign(t, s, StatusActive)

	clone, err := s.CloneCampaign(context.Background(), brand, src.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, src.ID, clone.ID)
	require.NotEqual(t, src.Code, clone.Code)
	require.Equal(t, StatusDraft, clone.Status)
	require.Equal(t, "Summer Launch (copy)", clone.Title)
}

func TestListCampaignsPaginates(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		createCampaign(t, s, StatusDraft)
	}

	first, info, err := s.ListCampaigns(ctx, ListCampaignsParams{BrandID: "brand-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, info.HasMore)

	second, info, err := s.ListCampaigns(ctx, ListCampaignsParams{BrandID: "brand-1", Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.False(t, info.HasMore)

	seen := map[string]bool{}
	for _, c := range append(first, second...) {
		require.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func setEndDate(t *testing.T, db *gorm.DB, id string, end time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&Campaign{}).Where("id = ?", id).Update("end_date", end.UTC()).Error)
}

func TestExpireCampaigns(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	expiredActive := createCampaign(t, s, StatusActive)
	setEndDate(t, db, expiredActive.ID, now.Add(-time.Hour))
	expiredPaused := createCampaign(t, s, StatusPaused)
	setEndDate(t, db, expiredPaused.ID, now.Add(-48*time.Hour))
	running := createCampaign(t, s, StatusActive)
	setEndDate(t, db, running.ID, now.Add(time.Hour))
	draft := createCampaign(t, s, StatusDraft)
	setEndDate(t, db, draft.ID, now.Add(-time.Hour))

	res, err := s.ExpireCampaigns(ctx, now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 2, Completed: 2}, res)

	for id, want := range map[string]Status{
		expiredActive.ID: StatusCompleted,
		expiredPaused.ID: StatusCompleted,
		running.ID:       StatusActive,
		draft.ID:         StatusDraft,
	} {
		got, err := s.GetCampaign(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got.Status)
	}

	res, err = s.ExpireCampaigns(ctx, now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, res)
}

func TestExpireCampaignsIsolatesFailures(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		c := createCampaign(t, s, StatusActive)
		setEndDate(t, db, c.ID, now.Add(-time.Hour))
		ids = append(ids, c.ID)
	}
	broken := ids[1]

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_broken", func(tx *gorm.DB) {
		if strings.Contains(fmt.Sprintf("%v", tx.Statement.Clauses["WHERE"].Expression), broken) {
			_ = tx.AddError(errors.New("storage unavailable"))
		}
	}))

	res, err := s.ExpireCampaigns(ctx, now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 3, Completed: 2, Failed: 1}, res)

	got, err := s.GetCampaign(ctx, broken)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
}
