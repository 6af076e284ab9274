package payment

import (
	"github.com/teamride-labs/teamride/internal/payment/adapters"
	"github.com/teamride-labs/teamride/internal/payment/repository"
	"github.com/teamride-labs/teamride/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.webhook",
	fx.Provide(adapters.NewRegistry),
	fx.Provide(repository.NewLedgerRepository),
	fx.Provide(webhook.NewService),
)
