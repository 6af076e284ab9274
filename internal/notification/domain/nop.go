package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

// Nop discards all notifications.
type Nop struct{}

func (Nop) SubscriptionActivated(context.Context, snowflake.ID, plandomain.PlanID)    {}
func (Nop) SubscriptionExpired(context.Context, snowflake.ID, plandomain.PlanID)      {}
func (Nop) RenewalReminder(context.Context, snowflake.ID, plandomain.PlanID, int) {}
