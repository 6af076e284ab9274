package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

// SessionContract is what the route layer needs to create a provider
// checkout. Metadata must be attached verbatim at session creation; the
// provider echoes it back in the completion webhook and the reconciler
// resolves the organization and plan from it.
type SessionContract struct {
	SessionRef string            `json:"session_ref"`
	PlanID     plandomain.PlanID `json:"plan_id"`
	PriceCents int64             `json:"price_cents"`
	Currency   string            `json:"currency"`
	Metadata   map[string]string `json:"metadata"`
}

type Service interface {
	// CreateSession validates the plan, stamps the session ref on the
	// organization's subscription record and returns the contract.
	CreateSession(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID) (*SessionContract, error)
}
