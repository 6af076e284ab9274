package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidPlan = errors.New("invalid_plan")
)

type PlanID string

type PlanKind string

const (
	KindFree           PlanKind = "free"
	KindOneShotCredits PlanKind = "one_shot_credits"
	KindRecurring      PlanKind = "recurring"
)

// PlanDefinition is an immutable catalog entry. Nil caps mean unlimited.
type PlanDefinition struct {
	ID         PlanID
	Kind       PlanKind
	Name       string
	PriceCents int64
	Currency   string

	// EventCredits granted on purchase. Only meaningful for one-shot packs.
	EventCredits *int64

	// InvitationCap is a lifetime cap on invitations sent. Nil is unlimited.
	InvitationCap *int64

	// Validity of a one-shot pack from purchase to expiry.
	Validity time.Duration

	// BillingInterval between renewals of a recurring plan.
	BillingInterval time.Duration
}

func (p PlanDefinition) IsFree() bool      { return p.Kind == KindFree }
func (p PlanDefinition) IsRecurring() bool { return p.Kind == KindRecurring }
func (p PlanDefinition) IsCreditPack() bool {
	return p.Kind == KindOneShotCredits
}

// Purchasable reports whether the plan can be sold through checkout.
func (p PlanDefinition) Purchasable() bool { return p.Kind != KindFree }

type Catalog interface {
	Get(id PlanID) (PlanDefinition, error)
	FreePlan() PlanDefinition
	List() []PlanDefinition
}
