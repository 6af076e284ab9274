package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	"gorm.io/gorm"
)

// ConsumeEventFilter describes the conditions under which one event may be
// consumed. The repository turns it into a single conditional UPDATE so the
// check and the decrement are one atomic statement.
type ConsumeEventFilter struct {
	OrgID  snowflake.ID
	PlanID plandomain.PlanID

	// RequireCredits decrements remaining_event_credits and requires it
	// to be positive.
	RequireCredits bool

	// EventCap, when set, requires events_created < cap (free tier).
	EventCap *int64

	// PeriodEndAfter, when set, requires period_end > the given instant.
	PeriodEndAfter *time.Time

	// PastDueUntil, when set, also accepts past_due records whose
	// period_end+grace has not elapsed yet.
	PastDueUntil *time.Time

	Now time.Time
}

// ConsumeInvitationsFilter is the bulk-invite counterpart: the whole batch
// of N invitations is admitted or rejected as one unit.
type ConsumeInvitationsFilter struct {
	OrgID  snowflake.ID
	PlanID plandomain.PlanID
	Count  int64

	// InvitationCap, when set, requires invitations_sent+count <= cap.
	InvitationCap *int64

	PeriodEndAfter *time.Time
	PastDueUntil   *time.Time

	Now time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rec *Record) error

	// UpdateTransition persists a status transition. It writes only the
	// columns transitions own: the usage counters (events_created,
	// invitations_sent) change exclusively through the conditional consume
	// statements and are never written here. A non-nil creditDelta moves
	// remaining_event_credits relative to the stored value instead of
	// overwriting it, so a consume committing after the record was read is
	// not undone.
	UpdateTransition(ctx context.Context, db *gorm.DB, rec *Record, creditDelta *int64) error

	FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Record, error)
	FindByExternalSubscriptionRef(ctx context.Context, db *gorm.DB, ref string) (*Record, error)

	// The ForUpdate variants take a row lock so a transition transaction
	// serializes against the consume statements touching the same record.
	FindByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Record, error)
	FindByExternalSubscriptionRefForUpdate(ctx context.Context, db *gorm.DB, ref string) (*Record, error)

	// ConsumeEvent / ConsumeInvitations return false without error when the
	// filter matched no row, i.e. the quota is exhausted or the record
	// changed state concurrently.
	ConsumeEvent(ctx context.Context, db *gorm.DB, f ConsumeEventFilter) (bool, error)
	ConsumeInvitations(ctx context.Context, db *gorm.DB, f ConsumeInvitationsFilter) (bool, error)

	// ListExpired returns active paid records whose period_end has elapsed.
	ListExpired(ctx context.Context, db *gorm.DB, freePlanID plandomain.PlanID, now time.Time) ([]Record, error)

	// ListActivePaid returns active records off the free plan, for the
	// reminder pass.
	ListActivePaid(ctx context.Context, db *gorm.DB, freePlanID plandomain.PlanID) ([]Record, error)
}
