package organization

import (
	"github.com/teamride-labs/teamride/internal/organization/repository"
	"github.com/teamride-labs/teamride/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
