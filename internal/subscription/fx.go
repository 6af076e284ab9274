package subscription

import (
	"github.com/teamride-labs/teamride/internal/subscription/repository"
	"github.com/teamride-labs/teamride/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
