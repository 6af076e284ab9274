package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	plansvc "github.com/teamride-labs/teamride/internal/plan/service"
	quotadomain "github.com/teamride-labs/teamride/internal/quota/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	subscriptionrepo "github.com/teamride-labs/teamride/internal/subscription/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	clk     *clock.Fixed
	svc     quotadomain.Service
	catalog plandomain.Catalog
	node    *snowflake.Node
}

func newFixture(t *testing.T, billing config.BillingConfig) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Record{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	catalog, err := plansvc.NewCatalog()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Cfg:     config.Config{Billing: billing},
		Catalog: catalog,
		SubRepo: subscriptionrepo.NewRepository(),
	})
	return &fixture{db: db, clk: clk, svc: svc, catalog: catalog, node: node}
}

func defaultBilling() config.BillingConfig {
	return config.BillingConfig{FreeEventCap: 1, FreeInvitationCap: 20}
}

func (f *fixture) seed(t *testing.T, rec subscriptiondomain.Record) subscriptiondomain.Record {
	t.Helper()
	if rec.ID == 0 {
		rec.ID = f.node.Generate()
	}
	now := f.clk.Now(context.Background())
	rec.CreatedAt = now
	rec.UpdatedAt = now
	require.NoError(t, f.db.Create(&rec).Error)
	return rec
}

func TestFreePlanEventCap(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	f.seed(t, subscriptiondomain.Record{
		OrgID:  101,
		PlanID: plansvc.PlanFree,
		Status: subscriptiondomain.StatusActive,
	})

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	require.NotNil(t, dec.Remaining)
	assert.Equal(t, int64(1), *dec.Remaining)

	require.NoError(t, f.svc.ConsumeEvent(ctx, 101))

	dec, err = f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "Free plan limit reached (1/1)", dec.Reason)

	err = f.svc.ConsumeEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
}

func TestFreePlanCapSurvivesExpiredPack(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()

	// An org back on the free plan after a pack keeps its lifetime counter.
	f.seed(t, subscriptiondomain.Record{
		OrgID:         101,
		PlanID:        plansvc.PlanFree,
		Status:        subscriptiondomain.StatusActive,
		EventsCreated: 11,
	})

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "Free plan limit reached (11/1)", dec.Reason)
}

func TestCreditPackConsumption(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(365 * 24 * time.Hour)
	credits := int64(3)
	f.seed(t, subscriptiondomain.Record{
		OrgID:                 101,
		PlanID:                plansvc.PlanPack10,
		Status:                subscriptiondomain.StatusActive,
		PeriodStart:           &now,
		PeriodEnd:             &end,
		RemainingEventCredits: &credits,
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ConsumeEvent(ctx, 101))
	}
	err := f.svc.ConsumeEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "No event credits remaining", dec.Reason)
}

func TestExpiredPackDeniesEvents(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	start := now.Add(-400 * 24 * time.Hour)
	end := now.Add(-35 * 24 * time.Hour)
	credits := int64(5)
	f.seed(t, subscriptiondomain.Record{
		OrgID:                 101,
		PlanID:                plansvc.PlanPack10,
		Status:                subscriptiondomain.StatusActive,
		PeriodStart:           &start,
		PeriodEnd:             &end,
		RemainingEventCredits: &credits,
	})

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "Event pack has expired", dec.Reason)

	err = f.svc.ConsumeEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
}

func TestRecurringPlanUnlimitedEvents(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(30 * 24 * time.Hour)
	f.seed(t, subscriptiondomain.Record{
		OrgID:       101,
		PlanID:      plansvc.PlanClubMonthly,
		Status:      subscriptiondomain.StatusActive,
		PeriodStart: &now,
		PeriodEnd:   &end,
	})

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Nil(t, dec.Remaining)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.svc.ConsumeEvent(ctx, 101))
	}
}

func TestPastDueBlocksWithoutGrace(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(10 * 24 * time.Hour)
	f.seed(t, subscriptiondomain.Record{
		OrgID:     101,
		PlanID:    plansvc.PlanClubMonthly,
		Status:    subscriptiondomain.StatusPastDue,
		PeriodEnd: &end,
	})

	_, err := f.svc.CanCreateEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrSubscriptionNotActive)

	err = f.svc.ConsumeEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrSubscriptionNotActive)
}

func TestPastDueAllowedInsideGrace(t *testing.T) {
	billing := defaultBilling()
	billing.GracePeriod = 14 * 24 * time.Hour
	f := newFixture(t, billing)
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(-3 * 24 * time.Hour)
	f.seed(t, subscriptiondomain.Record{
		OrgID:     101,
		PlanID:    plansvc.PlanClubMonthly,
		Status:    subscriptiondomain.StatusPastDue,
		PeriodEnd: &end,
	})

	dec, err := f.svc.CanCreateEvent(ctx, 101)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	require.NoError(t, f.svc.ConsumeEvent(ctx, 101))

	// Past the grace window the same record blocks.
	f.clk.Advance(20 * 24 * time.Hour)
	_, err = f.svc.CanCreateEvent(ctx, 101)
	assert.ErrorIs(t, err, quotadomain.ErrSubscriptionNotActive)
}

func TestCanceledBlocks(t *testing.T) {
	f := newFixture(t, defaultBilling())
	f.seed(t, subscriptiondomain.Record{
		OrgID:  101,
		PlanID: plansvc.PlanClubMonthly,
		Status: subscriptiondomain.StatusCanceled,
	})

	_, err := f.svc.CanCreateEvent(context.Background(), 101)
	assert.ErrorIs(t, err, quotadomain.ErrSubscriptionNotActive)
}

func TestUnknownOrg(t *testing.T) {
	f := newFixture(t, defaultBilling())
	_, err := f.svc.CanCreateEvent(context.Background(), 999)
	assert.ErrorIs(t, err, quotadomain.ErrOrganizationNotFound)
}

func TestInvitationCaps(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	f.seed(t, subscriptiondomain.Record{
		OrgID:  101,
		PlanID: plansvc.PlanFree,
		Status: subscriptiondomain.StatusActive,
	})

	_, err := f.svc.CanSendInvitations(ctx, 101, 0)
	assert.ErrorIs(t, err, quotadomain.ErrInvalidInvitationCount)

	dec, err := f.svc.CanSendInvitations(ctx, 101, 20)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	require.NoError(t, f.svc.ConsumeInvitations(ctx, 101, 15))

	dec, err = f.svc.CanSendInvitations(ctx, 101, 6)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "Invitation limit reached (15/20)", dec.Reason)

	// A batch that still fits passes.
	require.NoError(t, f.svc.ConsumeInvitations(ctx, 101, 5))
	err = f.svc.ConsumeInvitations(ctx, 101, 1)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
}

func TestRecurringInvitationsUnlimited(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(30 * 24 * time.Hour)
	f.seed(t, subscriptiondomain.Record{
		OrgID:     101,
		PlanID:    plansvc.PlanClubMonthly,
		Status:    subscriptiondomain.StatusActive,
		PeriodEnd: &end,
	})

	dec, err := f.svc.CanSendInvitations(ctx, 101, 5000)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	require.NoError(t, f.svc.ConsumeInvitations(ctx, 101, 5000))
}

// Concurrent consumers against K credits must net exactly K successes and
// leave the counter at zero.
func TestConcurrentEventConsumption(t *testing.T) {
	f := newFixture(t, defaultBilling())
	ctx := context.Background()
	now := f.clk.Now(ctx)
	end := now.Add(365 * 24 * time.Hour)
	credits := int64(10)
	f.seed(t, subscriptiondomain.Record{
		OrgID:                 101,
		PlanID:                plansvc.PlanPack10,
		Status:                subscriptiondomain.StatusActive,
		PeriodStart:           &now,
		PeriodEnd:             &end,
		RemainingEventCredits: &credits,
	})

	const attempts = 25
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.ConsumeEvent(ctx, 101)
		}()
	}
	wg.Wait()
	close(results)

	var granted, denied int
	for err := range results {
		switch {
		case err == nil:
			granted++
		default:
			assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
			denied++
		}
	}
	assert.Equal(t, 10, granted)
	assert.Equal(t, 15, denied)

	var rec subscriptiondomain.Record
	require.NoError(t, f.db.Where("org_id = ?", 101).First(&rec).Error)
	require.NotNil(t, rec.RemainingEventCredits)
	assert.Equal(t, int64(0), *rec.RemainingEventCredits)
	assert.Equal(t, int64(10), rec.EventsCreated)
}
