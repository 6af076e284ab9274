package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamride-labs/teamride/internal/clock"
	plansvc "github.com/teamride-labs/teamride/internal/plan/service"
	"github.com/teamride-labs/teamride/internal/subscription/domain"
	"github.com/teamride-labs/teamride/internal/subscription/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	catalog, err := plansvc.NewCatalog()
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.NewRepository(),
		Catalog: catalog,
	})
}

func TestCreateFreeRecord(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	rec, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	assert.Equal(t, plansvc.PlanFree, rec.PlanID)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Nil(t, rec.PeriodEnd)
	assert.Nil(t, rec.RemainingEventCredits)

	got, err := svc.GetByOrgID(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestActivateFromCheckout_CreditPack(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)

	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID:              101,
		PlanID:             plansvc.PlanPack10,
		CheckoutSessionRef: "cks_1",
		OccurredAt:         now,
	})
	require.NoError(t, err)

	assert.Equal(t, plansvc.PlanPack10, rec.PlanID)
	assert.Equal(t, domain.StatusActive, rec.Status)
	require.NotNil(t, rec.RemainingEventCredits)
	assert.Equal(t, int64(10), *rec.RemainingEventCredits)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, now.Add(365*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)
}

func TestActivateFromCheckout_PackStacking(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanPack10, OccurredAt: now,
	})
	require.NoError(t, err)

	// Burn three credits, then buy a second pack while the first is valid.
	require.NoError(t, db.Model(&domain.Record{}).
		Where("org_id = ?", 101).
		UpdateColumn("remaining_event_credits", 7).Error)

	later := now.Add(100 * 24 * time.Hour)
	clk.Set(later)
	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanPack10, OccurredAt: later,
	})
	require.NoError(t, err)

	require.NotNil(t, rec.RemainingEventCredits)
	assert.Equal(t, int64(17), *rec.RemainingEventCredits)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, later.Add(365*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)
}

func TestActivateFromCheckout_ExpiredPackDoesNotStack(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanPack10, OccurredAt: now,
	})
	require.NoError(t, err)

	later := now.Add(400 * 24 * time.Hour)
	clk.Set(later)
	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanPack10, OccurredAt: later,
	})
	require.NoError(t, err)

	require.NotNil(t, rec.RemainingEventCredits)
	assert.Equal(t, int64(10), *rec.RemainingEventCredits)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, later.Add(365*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)
}

func TestRecurringLifecycle(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)

	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID:                   101,
		PlanID:                  plansvc.PlanClubMonthly,
		ExternalSubscriptionRef: "sub_1",
		OccurredAt:              now,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.PeriodEnd)
	firstEnd := rec.PeriodEnd.UTC()
	assert.WithinDuration(t, now.Add(30*24*time.Hour), firstEnd, time.Second)

	// Failed renewal parks the record in past_due.
	rec, err = svc.MarkPaymentFailed(ctx, "sub_1", now.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, rec.Status)

	// Recovery a day after the period lapsed reactivates and starts the new
	// interval at the payment, not at the stale period end.
	recoveredAt := now.Add(31 * 24 * time.Hour)
	rec, err = svc.MarkPaymentSucceeded(ctx, "sub_1", recoveredAt)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, rec.Status)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, recoveredAt.Add(30*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)

	rec, err = svc.CancelByExternalRef(ctx, "sub_1", now.Add(62*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, rec.Status)
	assert.Nil(t, rec.PeriodEnd)
}

func TestRenewalBeforeExpiryExtendsFromPeriodEnd(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanClubMonthly, ExternalSubscriptionRef: "sub_1", OccurredAt: now,
	})
	require.NoError(t, err)
	firstEnd := rec.PeriodEnd.UTC()

	// Provider charges a couple of days early; the paid-for interval still
	// starts where the current one ends.
	rec, err = svc.MarkPaymentSucceeded(ctx, "sub_1", now.Add(28*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, firstEnd.Add(30*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)
}

func TestTransition_CanceledIsTerminal(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanClubMonthly, ExternalSubscriptionRef: "sub_1", OccurredAt: now,
	})
	require.NoError(t, err)
	_, err = svc.CancelByExternalRef(ctx, "sub_1", now)
	require.NoError(t, err)

	_, err = svc.MarkPaymentFailed(ctx, "sub_1", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.MarkPaymentSucceeded(ctx, "sub_1", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckoutAfterCancelReactivates(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanClubMonthly, ExternalSubscriptionRef: "sub_1", OccurredAt: now,
	})
	require.NoError(t, err)
	_, err = svc.CancelByExternalRef(ctx, "sub_1", now)
	require.NoError(t, err)

	// A fresh checkout must succeed against a canceled record.
	later := now.Add(48 * time.Hour)
	clk.Set(later)
	rec, err := svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanClubYearly, ExternalSubscriptionRef: "sub_2", OccurredAt: later,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, plansvc.PlanClubYearly, rec.PlanID)
	require.NotNil(t, rec.PeriodEnd)
	assert.WithinDuration(t, later.Add(365*24*time.Hour), rec.PeriodEnd.UTC(), time.Second)
}

func TestTransition_UnknownRef(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFixed(time.Now())
	svc := newTestService(t, db, clk)

	_, err := svc.MarkPaymentFailed(context.Background(), "sub_missing", time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownSubscription)
}

func TestExpireToFree(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanPack10, OccurredAt: now,
	})
	require.NoError(t, err)

	// Lifetime counters must survive the downgrade.
	require.NoError(t, db.Model(&domain.Record{}).
		Where("org_id = ?", 101).
		UpdateColumn("events_created", 4).Error)

	after := now.Add(366 * 24 * time.Hour)
	clk.Set(after)
	rec, err := svc.ExpireToFree(ctx, 101, after)
	require.NoError(t, err)

	assert.Equal(t, plansvc.PlanFree, rec.PlanID)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Nil(t, rec.PeriodEnd)
	assert.Nil(t, rec.RemainingEventCredits)
	assert.Equal(t, int64(4), rec.EventsCreated)
}

func TestExpireToFree_SkipsRenewedRecord(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)
	_, err = svc.ActivateFromCheckout(ctx, domain.CheckoutActivation{
		OrgID: 101, PlanID: plansvc.PlanClubMonthly, ExternalSubscriptionRef: "sub_1", OccurredAt: now,
	})
	require.NoError(t, err)

	// Period end is still in the future relative to the sweep timestamp.
	rec, err := svc.ExpireToFree(ctx, 101, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, plansvc.PlanClubMonthly, rec.PlanID)
}

func TestTransitionAllowedTable(t *testing.T) {
	cases := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusActive, domain.StatusPastDue, true},
		{domain.StatusActive, domain.StatusCanceled, true},
		{domain.StatusPastDue, domain.StatusActive, true},
		{domain.StatusPastDue, domain.StatusCanceled, true},
		{domain.StatusCanceled, domain.StatusActive, false},
		{domain.StatusCanceled, domain.StatusPastDue, false},
		{domain.StatusActive, domain.StatusActive, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, domain.TransitionAllowed(c.from, c.to),
			"%s -> %s", c.from, c.to)
	}
}
