package adapters

import (
	"strings"

	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/payment/adapters/stripe"
	"github.com/teamride-labs/teamride/internal/payment/domain"
)

// Registry resolves provider names to their configured adapters.
type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(cfg config.Config, clk clock.Clock) *Registry {
	r := &Registry{adapters: make(map[string]domain.Adapter)}
	r.register(stripe.NewAdapter(cfg.Webhook.StripeSecret, cfg.Webhook.SignatureTolerance, clk))
	return r
}

func (r *Registry) register(a domain.Adapter) {
	r.adapters[strings.ToLower(a.Provider())] = a
}

func (r *Registry) Get(provider string) (domain.Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return a, ok
}
