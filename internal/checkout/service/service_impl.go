package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/teamride-labs/teamride/internal/checkout/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Catalog plandomain.Catalog
	SubSvc  subscriptiondomain.Service
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	catalog plandomain.Catalog
	subSvc  subscriptiondomain.Service
}

func NewService(p ServiceParam) checkoutdomain.Service {
	return &Service{
		log:     p.Log.Named("checkout.service"),
		genID:   p.GenID,
		catalog: p.Catalog,
		subSvc:  p.SubSvc,
	}
}

func (s *Service) CreateSession(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID) (*checkoutdomain.SessionContract, error) {
	plan, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	if !plan.Purchasable() {
		return nil, plandomain.ErrInvalidPlan
	}

	sessionRef := fmt.Sprintf("cks_%s", s.genID.Generate())

	if err := s.subSvc.StampCheckoutSession(ctx, orgID, sessionRef); err != nil {
		return nil, err
	}

	s.log.Info("checkout session prepared",
		zap.Int64("org_id", int64(orgID)),
		zap.String("plan_id", string(planID)),
		zap.String("session_ref", sessionRef))

	return &checkoutdomain.SessionContract{
		SessionRef: sessionRef,
		PlanID:     plan.ID,
		PriceCents: plan.PriceCents,
		Currency:   plan.Currency,
		Metadata: map[string]string{
			"organization_id": orgID.String(),
			"plan_id":         string(plan.ID),
		},
	}, nil
}
