package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	"github.com/teamride-labs/teamride/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct{}

func NewRepository() domain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, rec *domain.Record) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) UpdateTransition(ctx context.Context, db *gorm.DB, rec *domain.Record, creditDelta *int64) error {
	updates := map[string]any{
		"plan_id":                   rec.PlanID,
		"status":                    rec.Status,
		"period_start":              rec.PeriodStart,
		"period_end":                rec.PeriodEnd,
		"external_customer_ref":     rec.ExternalCustomerRef,
		"external_subscription_ref": rec.ExternalSubscriptionRef,
		"last_checkout_session_ref": rec.LastCheckoutSessionRef,
		"updated_at":                rec.UpdatedAt,
	}
	if creditDelta != nil {
		updates["remaining_event_credits"] = gorm.Expr("COALESCE(remaining_event_credits, 0) + ?", *creditDelta)
	} else {
		updates["remaining_event_credits"] = rec.RemainingEventCredits
	}
	return db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ?", rec.ID).
		UpdateColumns(updates).Error
}

func (r *Repository) FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Record, error) {
	return r.findOne(ctx, db, "org_id = ?", orgID)
}

func (r *Repository) FindByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Record, error) {
	return r.findOne(ctx, db.Clauses(clause.Locking{Strength: "UPDATE"}), "org_id = ?", orgID)
}

func (r *Repository) FindByExternalSubscriptionRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Record, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, "external_subscription_ref = ?", ref)
}

func (r *Repository) FindByExternalSubscriptionRefForUpdate(ctx context.Context, db *gorm.DB, ref string) (*domain.Record, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db.Clauses(clause.Locking{Strength: "UPDATE"}), "external_subscription_ref = ?", ref)
}

func (r *Repository) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Record, error) {
	var rec domain.Record
	err := db.WithContext(ctx).
		Where(query, arg).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// statusScope admits active records, plus past_due ones still inside the
// grace window when the filter allows it.
func statusScope(db *gorm.DB, pastDueUntil *time.Time) *gorm.DB {
	if pastDueUntil != nil {
		return db.Where(
			"(status = ? OR (status = ? AND period_end IS NOT NULL AND period_end > ?))",
			domain.StatusActive, domain.StatusPastDue, *pastDueUntil,
		)
	}
	return db.Where("status = ?", domain.StatusActive)
}

func (r *Repository) ConsumeEvent(ctx context.Context, db *gorm.DB, f domain.ConsumeEventFilter) (bool, error) {
	q := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("org_id = ? AND plan_id = ?", f.OrgID, f.PlanID)
	q = statusScope(q, f.PastDueUntil)

	updates := map[string]any{
		"events_created": gorm.Expr("events_created + 1"),
		"updated_at":     f.Now,
	}
	if f.RequireCredits {
		q = q.Where("remaining_event_credits IS NOT NULL AND remaining_event_credits > 0")
		updates["remaining_event_credits"] = gorm.Expr("remaining_event_credits - 1")
	}
	if f.EventCap != nil {
		q = q.Where("events_created < ?", *f.EventCap)
	}
	if f.PeriodEndAfter != nil {
		q = q.Where("period_end IS NOT NULL AND period_end > ?", *f.PeriodEndAfter)
	}

	res := q.UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ConsumeInvitations(ctx context.Context, db *gorm.DB, f domain.ConsumeInvitationsFilter) (bool, error) {
	q := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("org_id = ? AND plan_id = ?", f.OrgID, f.PlanID)
	q = statusScope(q, f.PastDueUntil)

	if f.InvitationCap != nil {
		q = q.Where("invitations_sent + ? <= ?", f.Count, *f.InvitationCap)
	}
	if f.PeriodEndAfter != nil {
		q = q.Where("period_end IS NOT NULL AND period_end > ?", *f.PeriodEndAfter)
	}

	res := q.UpdateColumns(map[string]any{
		"invitations_sent": gorm.Expr("invitations_sent + ?", f.Count),
		"updated_at":       f.Now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListExpired(ctx context.Context, db *gorm.DB, freePlanID plandomain.PlanID, now time.Time) ([]domain.Record, error) {
	var recs []domain.Record
	err := db.WithContext(ctx).
		Where("status = ? AND plan_id <> ? AND period_end IS NOT NULL AND period_end <= ?",
			domain.StatusActive, freePlanID, now).
		Find(&recs).Error
	return recs, err
}

func (r *Repository) ListActivePaid(ctx context.Context, db *gorm.DB, freePlanID plandomain.PlanID) ([]domain.Record, error) {
	var recs []domain.Record
	err := db.WithContext(ctx).
		Where("status = ? AND plan_id <> ? AND period_end IS NOT NULL",
			domain.StatusActive, freePlanID).
		Find(&recs).Error
	return recs, err
}
