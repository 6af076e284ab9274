package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

// Notifier hands templated messages to the out-of-process mailer. Dispatch
// is fire-and-forget: implementations log failures and never return them to
// the billing transition that triggered the message.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID)
	SubscriptionExpired(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID)
	RenewalReminder(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID, daysLeft int)
}
