package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	"gorm.io/gorm"
)

// CheckoutActivation carries the metadata echoed back by the payment
// provider on checkout completion.
type CheckoutActivation struct {
	OrgID  snowflake.ID
	PlanID plandomain.PlanID

	ExternalCustomerRef     string
	ExternalSubscriptionRef string
	CheckoutSessionRef      string

	OccurredAt time.Time
}

type Service interface {
	// CreateFreeRecord inserts the default free-tier record for a new
	// organization. Runs inside the caller's transaction so the org and
	// its record are created atomically.
	CreateFreeRecord(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (*Record, error)

	GetByOrgID(ctx context.Context, orgID snowflake.ID) (*Record, error)

	// ActivateFromCheckout applies a completed checkout: any prior status
	// recovers to active with the purchased plan's grants. One-shot credit
	// packs stack onto a still-valid prior pack instead of replacing it.
	ActivateFromCheckout(ctx context.Context, act CheckoutActivation) (*Record, error)

	// MarkPaymentFailed moves a recurring subscription active -> past_due.
	MarkPaymentFailed(ctx context.Context, externalSubscriptionRef string, occurredAt time.Time) (*Record, error)

	// MarkPaymentSucceeded recovers past_due -> active and extends the
	// period by one billing interval.
	MarkPaymentSucceeded(ctx context.Context, externalSubscriptionRef string, occurredAt time.Time) (*Record, error)

	// CancelByExternalRef applies a provider-side cancellation.
	CancelByExternalRef(ctx context.Context, externalSubscriptionRef string, occurredAt time.Time) (*Record, error)

	// ExpireToFree downgrades an active paid record whose period has
	// elapsed back to the free plan. Lifetime counters persist.
	ExpireToFree(ctx context.Context, orgID snowflake.ID, now time.Time) (*Record, error)

	// StampCheckoutSession records the session ref handed to the provider
	// so the completion event can be correlated.
	StampCheckoutSession(ctx context.Context, orgID snowflake.ID, sessionRef string) error
}
