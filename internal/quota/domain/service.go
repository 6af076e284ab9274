package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrOrganizationNotFound   = errors.New("organization_not_found")
	ErrSubscriptionNotActive  = errors.New("subscription_not_active")
	ErrQuotaExceeded          = errors.New("quota_exceeded")
	ErrInvalidInvitationCount = errors.New("invalid_invitation_count")
)

// Decision is the outcome of a quota check. Reason is user-facing copy shown
// on denial; Remaining is nil on unlimited plans.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
}

// Service gates quota-consuming actions. Can* is advisory; Consume* is the
// atomic check-and-decrement and must be called only after the event or
// invitation batch has durably succeeded.
type Service interface {
	CanCreateEvent(ctx context.Context, orgID snowflake.ID) (Decision, error)
	CanSendInvitations(ctx context.Context, orgID snowflake.ID, count int64) (Decision, error)

	ConsumeEvent(ctx context.Context, orgID snowflake.ID) error
	ConsumeInvitations(ctx context.Context, orgID snowflake.ID, count int64) error
}
