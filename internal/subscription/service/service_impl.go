package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/clock"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Catalog plandomain.Catalog
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	catalog plandomain.Catalog
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) CreateFreeRecord(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Record, error) {
	now := s.clock.Now(ctx)
	rec := &subscriptiondomain.Record{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		PlanID:    s.catalog.FreePlan().ID,
		Status:    subscriptiondomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) GetByOrgID(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Record, error) {
	rec, err := s.repo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return rec, nil
}

func (s *Service) ActivateFromCheckout(ctx context.Context, act subscriptiondomain.CheckoutActivation) (*subscriptiondomain.Record, error) {
	plan, err := s.catalog.Get(act.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Purchasable() {
		return nil, plandomain.ErrInvalidPlan
	}

	occurredAt := act.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now(ctx)
	}

	var out *subscriptiondomain.Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindByOrgIDForUpdate(ctx, tx, act.OrgID)
		if err != nil {
			return err
		}
		if rec == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		var creditDelta *int64
		switch plan.Kind {
		case plandomain.KindOneShotCredits:
			creditDelta = s.applyCreditPack(rec, plan, occurredAt)
		case plandomain.KindRecurring:
			start := occurredAt
			end := occurredAt.Add(plan.BillingInterval)
			rec.PeriodStart = &start
			rec.PeriodEnd = &end
			rec.RemainingEventCredits = nil
		}

		rec.PlanID = plan.ID
		rec.Status = subscriptiondomain.StatusActive
		if act.ExternalCustomerRef != "" {
			rec.ExternalCustomerRef = act.ExternalCustomerRef
		}
		rec.ExternalSubscriptionRef = act.ExternalSubscriptionRef
		if act.CheckoutSessionRef != "" {
			rec.LastCheckoutSessionRef = act.CheckoutSessionRef
		}
		rec.UpdatedAt = s.clock.Now(ctx)

		if err := s.repo.UpdateTransition(ctx, tx, rec, creditDelta); err != nil {
			return err
		}
		if creditDelta != nil {
			// Stacking writes a credit delta; re-read so the returned
			// record carries the summed balance.
			if rec, err = s.repo.FindByOrgID(ctx, tx, act.OrgID); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription activated from checkout",
		zap.Int64("org_id", int64(act.OrgID)),
		zap.String("plan_id", string(plan.ID)))
	return out, nil
}

// applyCreditPack grants a one-shot pack. A still-valid prior pack stacks:
// credits add up and the validity window extends to the later expiry.
// Stacking returns the pack size as a delta instead of writing a computed
// total, so a consume landing on the row keeps its effect.
func (s *Service) applyCreditPack(rec *subscriptiondomain.Record, plan plandomain.PlanDefinition, occurredAt time.Time) *int64 {
	start := occurredAt
	end := occurredAt.Add(plan.Validity)
	granted := *plan.EventCredits

	prior, err := s.catalog.Get(rec.PlanID)
	stacking := err == nil && prior.IsCreditPack() &&
		rec.Status == subscriptiondomain.StatusActive &&
		rec.RemainingEventCredits != nil &&
		rec.PeriodEnd != nil && rec.PeriodEnd.After(occurredAt)

	var creditDelta *int64
	if stacking {
		delta := granted
		creditDelta = &delta
		if rec.PeriodStart != nil && rec.PeriodStart.Before(start) {
			start = *rec.PeriodStart
		}
		if rec.PeriodEnd.After(end) {
			end = *rec.PeriodEnd
		}
		s.log.Info("stacking credit pack onto unexpired pack",
			zap.Int64("org_id", int64(rec.OrgID)),
			zap.Int64("credits_added", delta))
	} else {
		rec.RemainingEventCredits = &granted
	}

	rec.PeriodStart = &start
	rec.PeriodEnd = &end
	return creditDelta
}

func (s *Service) MarkPaymentFailed(ctx context.Context, ref string, occurredAt time.Time) (*subscriptiondomain.Record, error) {
	return s.transitionByExternalRef(ctx, ref, subscriptiondomain.StatusPastDue, nil)
}

func (s *Service) MarkPaymentSucceeded(ctx context.Context, ref string, occurredAt time.Time) (*subscriptiondomain.Record, error) {
	return s.transitionByExternalRef(ctx, ref, subscriptiondomain.StatusActive,
		func(rec *subscriptiondomain.Record, plan plandomain.PlanDefinition) {
			if !plan.IsRecurring() {
				return
			}
			// Renewal extends from the current period end when it is still
			// in the future, otherwise from the payment itself.
			base := occurredAt
			if rec.PeriodEnd != nil && rec.PeriodEnd.After(base) {
				base = *rec.PeriodEnd
			}
			end := base.Add(plan.BillingInterval)
			rec.PeriodEnd = &end
		})
}

func (s *Service) CancelByExternalRef(ctx context.Context, ref string, occurredAt time.Time) (*subscriptiondomain.Record, error) {
	return s.transitionByExternalRef(ctx, ref, subscriptiondomain.StatusCanceled,
		func(rec *subscriptiondomain.Record, _ plandomain.PlanDefinition) {
			rec.RemainingEventCredits = nil
			rec.PeriodStart = nil
			rec.PeriodEnd = nil
		})
}

// transitionByExternalRef applies a webhook-driven status change. Unlisted
// transitions are rejected and logged as invariant violations; a same-status
// redelivery is a no-op.
func (s *Service) transitionByExternalRef(
	ctx context.Context,
	ref string,
	to subscriptiondomain.Status,
	mutate func(*subscriptiondomain.Record, plandomain.PlanDefinition),
) (*subscriptiondomain.Record, error) {
	var out *subscriptiondomain.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindByExternalSubscriptionRefForUpdate(ctx, tx, ref)
		if err != nil {
			return err
		}
		if rec == nil {
			return subscriptiondomain.ErrUnknownSubscription
		}

		if rec.Status == to && to != subscriptiondomain.StatusActive {
			out = rec
			return nil
		}
		if rec.Status != to && !subscriptiondomain.TransitionAllowed(rec.Status, to) {
			s.log.Error("rejected invalid subscription transition",
				zap.Int64("org_id", int64(rec.OrgID)),
				zap.String("from", string(rec.Status)),
				zap.String("to", string(to)),
				zap.String("external_subscription_ref", ref))
			return subscriptiondomain.ErrInvalidTransition
		}

		plan, err := s.catalog.Get(rec.PlanID)
		if err != nil {
			return err
		}
		if mutate != nil {
			mutate(rec, plan)
		}
		rec.Status = to
		rec.UpdatedAt = s.clock.Now(ctx)

		if err := s.repo.UpdateTransition(ctx, tx, rec, nil); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ExpireToFree(ctx context.Context, orgID snowflake.ID, now time.Time) (*subscriptiondomain.Record, error) {
	free := s.catalog.FreePlan()

	var out *subscriptiondomain.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if rec == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		// Re-check under the row lock: a renewal webhook may have
		// extended the period since the sweep scanned this record.
		if rec.Status != subscriptiondomain.StatusActive ||
			rec.PlanID == free.ID ||
			rec.PeriodEnd == nil || rec.PeriodEnd.After(now) {
			out = rec
			return nil
		}

		rec.PlanID = free.ID
		rec.PeriodStart = nil
		rec.PeriodEnd = nil
		rec.RemainingEventCredits = nil
		rec.ExternalSubscriptionRef = ""
		rec.UpdatedAt = s.clock.Now(ctx)

		if err := s.repo.UpdateTransition(ctx, tx, rec, nil); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) StampCheckoutSession(ctx context.Context, orgID snowflake.ID, sessionRef string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if rec == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		rec.LastCheckoutSessionRef = sessionRef
		rec.UpdatedAt = s.clock.Now(ctx)
		return s.repo.UpdateTransition(ctx, tx, rec, nil)
	})
}
