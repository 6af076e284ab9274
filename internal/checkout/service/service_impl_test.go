package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamride-labs/teamride/internal/clock"
	checkoutdomain "github.com/teamride-labs/teamride/internal/checkout/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	plansvc "github.com/teamride-labs/teamride/internal/plan/service"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	subscriptionrepo "github.com/teamride-labs/teamride/internal/subscription/repository"
	subscriptionsvc "github.com/teamride-labs/teamride/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (checkoutdomain.Service, subscriptiondomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Record{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	catalog, err := plansvc.NewCatalog()
	require.NoError(t, err)
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	subSvc := subscriptionsvc.NewService(subscriptionsvc.ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    subscriptionrepo.NewRepository(),
		Catalog: catalog,
	})

	svc := NewService(ServiceParam{
		Log:     zap.NewNop(),
		GenID:   node,
		Catalog: catalog,
		SubSvc:  subSvc,
	})
	return svc, subSvc, db
}

func TestCreateSession(t *testing.T) {
	svc, subSvc, db := newTestService(t)
	ctx := context.Background()
	_, err := subSvc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)

	session, err := svc.CreateSession(ctx, 101, plansvc.PlanPack10)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(session.SessionRef, "cks_"))
	assert.Equal(t, plansvc.PlanPack10, session.PlanID)
	assert.Equal(t, int64(4900), session.PriceCents)
	assert.Equal(t, "EUR", session.Currency)
	assert.Equal(t, "101", session.Metadata["organization_id"])
	assert.Equal(t, "pack10", session.Metadata["plan_id"])

	// The session ref is stamped so the completion webhook can be audited
	// against what we handed the provider.
	var rec subscriptiondomain.Record
	require.NoError(t, db.Where("org_id = ?", 101).First(&rec).Error)
	assert.Equal(t, session.SessionRef, rec.LastCheckoutSessionRef)
}

func TestCreateSession_RejectsFreeAndUnknownPlans(t *testing.T) {
	svc, subSvc, db := newTestService(t)
	ctx := context.Background()
	_, err := subSvc.CreateFreeRecord(ctx, db, 101)
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, 101, plansvc.PlanFree)
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlan)

	_, err = svc.CreateSession(ctx, 101, "pack999")
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlan)
}

func TestCreateSession_UnknownOrg(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateSession(context.Background(), 999, plansvc.PlanPack10)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
