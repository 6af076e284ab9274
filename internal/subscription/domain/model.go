package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrUnknownSubscription  = errors.New("unknown_external_subscription")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Record is the single billing record an organization owns. It is written
// only by the quota service, the webhook reconciler and the sweeper; request
// handlers never touch it directly.
type Record struct {
	ID    snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex"`

	PlanID plandomain.PlanID `json:"plan_id" gorm:"type:varchar(64);not null"`
	Status Status            `json:"status" gorm:"type:varchar(20);not null;index"`

	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end" gorm:"index"`

	// RemainingEventCredits is nil for unlimited plans and for the free
	// tier. Never negative when set.
	RemainingEventCredits *int64 `json:"remaining_event_credits"`

	// Lifetime counters. They survive plan changes and expiry so the free
	// tier caps apply to the organization, not to the current period.
	EventsCreated   int64 `json:"events_created" gorm:"not null;default:0"`
	InvitationsSent int64 `json:"invitations_sent" gorm:"not null;default:0"`

	// Opaque payment-provider correlation refs. Reconciliation only.
	ExternalCustomerRef     string `json:"-" gorm:"type:varchar(255)"`
	ExternalSubscriptionRef string `json:"-" gorm:"type:varchar(255);index"`
	LastCheckoutSessionRef  string `json:"-" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Record) TableName() string { return "subscription_records" }

// TransitionAllowed gates status changes applied by the webhook reconciler
// and the sweeper. Checkout completion is handled
// separately: a fresh checkout may activate from any prior status.
func TransitionAllowed(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusPastDue || to == StatusCanceled
	case StatusPastDue:
		// Providers cancel delinquent subscriptions after dunning, so the
		// cancellation may arrive while we still hold past_due.
		return to == StatusActive || to == StatusCanceled
	case StatusCanceled:
		return false
	}
	return false
}
