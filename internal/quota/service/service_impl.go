package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/observability"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	quotadomain "github.com/teamride-labs/teamride/internal/quota/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Cfg     config.Config
	Catalog plandomain.Catalog
	SubRepo subscriptiondomain.Repository
	Metrics *observability.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	billing config.BillingConfig
	catalog plandomain.Catalog
	subRepo subscriptiondomain.Repository
	metrics *observability.Metrics
}

func NewService(p ServiceParam) quotadomain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("quota.service"),
		clock:   p.Clock,
		billing: p.Cfg.Billing,
		catalog: p.Catalog,
		subRepo: p.SubRepo,
		metrics: p.Metrics,
	}
}

func (s *service) CanCreateEvent(ctx context.Context, orgID snowflake.ID) (quotadomain.Decision, error) {
	rec, plan, now, err := s.lookup(ctx, orgID)
	if err != nil {
		return quotadomain.Decision{}, err
	}

	switch plan.Kind {
	case plandomain.KindFree:
		remaining := s.billing.FreeEventCap - rec.EventsCreated
		if remaining <= 0 {
			return s.deny("event", fmt.Sprintf("Free plan limit reached (%d/%d)",
				rec.EventsCreated, s.billing.FreeEventCap), int64ptr(0)), nil
		}
		return quotadomain.Decision{Allowed: true, Remaining: &remaining}, nil

	case plandomain.KindOneShotCredits:
		if rec.PeriodEnd == nil || !rec.PeriodEnd.After(now) {
			return s.deny("event", "Event pack has expired", nil), nil
		}
		if rec.RemainingEventCredits == nil || *rec.RemainingEventCredits <= 0 {
			return s.deny("event", "No event credits remaining", int64ptr(0)), nil
		}
		return quotadomain.Decision{Allowed: true, Remaining: rec.RemainingEventCredits}, nil

	default:
		return quotadomain.Decision{Allowed: true}, nil
	}
}

func (s *service) CanSendInvitations(ctx context.Context, orgID snowflake.ID, count int64) (quotadomain.Decision, error) {
	if count <= 0 {
		return quotadomain.Decision{}, quotadomain.ErrInvalidInvitationCount
	}

	rec, plan, now, err := s.lookup(ctx, orgID)
	if err != nil {
		return quotadomain.Decision{}, err
	}

	inviteCap := s.invitationCap(plan)
	if plan.IsCreditPack() && (rec.PeriodEnd == nil || !rec.PeriodEnd.After(now)) {
		return s.deny("invitation", "Event pack has expired", nil), nil
	}
	if inviteCap == nil {
		return quotadomain.Decision{Allowed: true}, nil
	}

	remaining := *inviteCap - rec.InvitationsSent
	if remaining < count {
		return s.deny("invitation", fmt.Sprintf("Invitation limit reached (%d/%d)",
			rec.InvitationsSent, *inviteCap), &remaining), nil
	}
	return quotadomain.Decision{Allowed: true, Remaining: &remaining}, nil
}

func (s *service) ConsumeEvent(ctx context.Context, orgID snowflake.ID) error {
	_, plan, now, err := s.lookup(ctx, orgID)
	if err != nil {
		return err
	}

	f := subscriptiondomain.ConsumeEventFilter{
		OrgID:  orgID,
		PlanID: plan.ID,
		Now:    now,
	}
	switch plan.Kind {
	case plandomain.KindFree:
		f.EventCap = int64ptr(s.billing.FreeEventCap)
	case plandomain.KindOneShotCredits:
		f.RequireCredits = true
		f.PeriodEndAfter = &now
	case plandomain.KindRecurring:
		f.PastDueUntil = s.pastDueCutoff(now)
	}

	ok, err := s.subRepo.ConsumeEvent(ctx, s.db, f)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyRejection(ctx, orgID, "event")
	}
	return nil
}

func (s *service) ConsumeInvitations(ctx context.Context, orgID snowflake.ID, count int64) error {
	if count <= 0 {
		return quotadomain.ErrInvalidInvitationCount
	}

	_, plan, now, err := s.lookup(ctx, orgID)
	if err != nil {
		return err
	}

	f := subscriptiondomain.ConsumeInvitationsFilter{
		OrgID:         orgID,
		PlanID:        plan.ID,
		Count:         count,
		InvitationCap: s.invitationCap(plan),
		Now:           now,
	}
	if plan.IsCreditPack() {
		f.PeriodEndAfter = &now
	}
	if plan.IsRecurring() {
		f.PastDueUntil = s.pastDueCutoff(now)
	}

	ok, err := s.subRepo.ConsumeInvitations(ctx, s.db, f)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyRejection(ctx, orgID, "invitation")
	}
	return nil
}

// lookup resolves the record and its plan, and enforces subscription status.
// PastDue passes only inside the configured grace window.
func (s *service) lookup(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Record, plandomain.PlanDefinition, time.Time, error) {
	now := s.clock.Now(ctx)

	rec, err := s.subRepo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, plandomain.PlanDefinition{}, now, err
	}
	if rec == nil {
		return nil, plandomain.PlanDefinition{}, now, quotadomain.ErrOrganizationNotFound
	}

	switch rec.Status {
	case subscriptiondomain.StatusActive:
	case subscriptiondomain.StatusPastDue:
		cutoff := s.pastDueCutoff(now)
		if cutoff == nil || rec.PeriodEnd == nil || !rec.PeriodEnd.After(*cutoff) {
			return nil, plandomain.PlanDefinition{}, now, quotadomain.ErrSubscriptionNotActive
		}
	default:
		return nil, plandomain.PlanDefinition{}, now, quotadomain.ErrSubscriptionNotActive
	}

	plan, err := s.catalog.Get(rec.PlanID)
	if err != nil {
		return nil, plandomain.PlanDefinition{}, now, err
	}
	return rec, plan, now, nil
}

// pastDueCutoff returns the instant period_end must still be after for a
// past_due record to keep passing. Nil when no grace is configured.
func (s *service) pastDueCutoff(now time.Time) *time.Time {
	if s.billing.GracePeriod <= 0 {
		return nil
	}
	cutoff := now.Add(-s.billing.GracePeriod)
	return &cutoff
}

func (s *service) invitationCap(plan plandomain.PlanDefinition) *int64 {
	if plan.IsFree() {
		return int64ptr(s.billing.FreeInvitationCap)
	}
	return plan.InvitationCap
}

// classifyRejection distinguishes a genuinely exhausted quota from a record
// that vanished or changed status between the read and the update.
func (s *service) classifyRejection(ctx context.Context, orgID snowflake.ID, resource string) error {
	rec, err := s.subRepo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return err
	}
	if rec == nil {
		return quotadomain.ErrOrganizationNotFound
	}
	if rec.Status != subscriptiondomain.StatusActive && rec.Status != subscriptiondomain.StatusPastDue {
		return quotadomain.ErrSubscriptionNotActive
	}

	s.log.Info("quota consumption rejected",
		zap.Int64("org_id", int64(orgID)),
		zap.String("resource", resource),
		zap.String("plan_id", string(rec.PlanID)))
	if s.metrics != nil {
		s.metrics.QuotaDenials.WithLabelValues(resource, "exhausted").Inc()
	}
	return quotadomain.ErrQuotaExceeded
}

func (s *service) deny(resource, reason string, remaining *int64) quotadomain.Decision {
	if s.metrics != nil {
		s.metrics.QuotaDenials.WithLabelValues(resource, "denied").Inc()
	}
	return quotadomain.Decision{Allowed: false, Reason: reason, Remaining: remaining}
}

func int64ptr(v int64) *int64 { return &v }
