package audit

import (
	"github.com/repartia/treasury/internal/audit/repository"
	"github.com/repartia/treasury/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
