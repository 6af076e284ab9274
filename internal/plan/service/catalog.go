package service

import (
	"fmt"
	"time"

	"github.com/teamride-labs/teamride/internal/plan/domain"
)

const (
	PlanFree        domain.PlanID = "free"
	PlanPack10      domain.PlanID = "pack10"
	PlanClubMonthly domain.PlanID = "club_monthly"
	PlanClubYearly  domain.PlanID = "club_yearly"
)

func int64ptr(v int64) *int64 { return &v }

// defaultTable is the authoritative plan table. Versioned in code: changing
// a grant means adding a new plan id, never mutating an existing one.
var defaultTable = []domain.PlanDefinition{
	{
		ID:            PlanFree,
		Kind:          domain.KindFree,
		Name:          "Free",
		EventCredits:  nil,
		InvitationCap: nil, // caps for the free tier come from billing config
	},
	{
		ID:           PlanPack10,
		Kind:         domain.KindOneShotCredits,
		Name:         "10 Event Pack",
		PriceCents:   4900,
		Currency:     "EUR",
		EventCredits: int64ptr(10),
		Validity:     365 * 24 * time.Hour,
	},
	{
		ID:              PlanClubMonthly,
		Kind:            domain.KindRecurring,
		Name:            "Club Monthly",
		PriceCents:      1900,
		Currency:        "EUR",
		BillingInterval: 30 * 24 * time.Hour,
	},
	{
		ID:              PlanClubYearly,
		Kind:            domain.KindRecurring,
		Name:            "Club Yearly",
		PriceCents:      19000,
		Currency:        "EUR",
		BillingInterval: 365 * 24 * time.Hour,
	},
}

type catalog struct {
	plans map[domain.PlanID]domain.PlanDefinition
	free  domain.PlanID
	order []domain.PlanID
}

// NewCatalog builds the static catalog and validates its invariants.
// Provided through fx so a broken table fails the process at startup.
func NewCatalog() (domain.Catalog, error) {
	return newCatalog(defaultTable)
}

func newCatalog(table []domain.PlanDefinition) (domain.Catalog, error) {
	c := &catalog{plans: make(map[domain.PlanID]domain.PlanDefinition, len(table))}
	for _, p := range table {
		if p.ID == "" {
			return nil, fmt.Errorf("plan catalog: empty plan id")
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("plan catalog: duplicate plan id %q", p.ID)
		}
		switch p.Kind {
		case domain.KindFree:
			if c.free != "" {
				return nil, fmt.Errorf("plan catalog: more than one free plan (%q, %q)", c.free, p.ID)
			}
			c.free = p.ID
		case domain.KindOneShotCredits:
			if p.EventCredits == nil || *p.EventCredits <= 0 {
				return nil, fmt.Errorf("plan catalog: credit pack %q without credits", p.ID)
			}
			if p.Validity <= 0 {
				return nil, fmt.Errorf("plan catalog: credit pack %q without validity", p.ID)
			}
		case domain.KindRecurring:
			if p.BillingInterval <= 0 {
				return nil, fmt.Errorf("plan catalog: recurring plan %q without billing interval", p.ID)
			}
		default:
			return nil, fmt.Errorf("plan catalog: unknown kind %q for plan %q", p.Kind, p.ID)
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	if c.free == "" {
		return nil, fmt.Errorf("plan catalog: no free plan defined")
	}
	return c, nil
}

func (c *catalog) Get(id domain.PlanID) (domain.PlanDefinition, error) {
	p, ok := c.plans[id]
	if !ok {
		return domain.PlanDefinition{}, domain.ErrInvalidPlan
	}
	return p, nil
}

func (c *catalog) FreePlan() domain.PlanDefinition {
	return c.plans[c.free]
}

func (c *catalog) List() []domain.PlanDefinition {
	out := make([]domain.PlanDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
