package taxvault

import (
	"github.com/repartia/treasury/internal/taxvault/service"
	"go.uber.org/fx"
)

var Module = fx.Module("taxvault.service",
	fx.Provide(service.NewService),
)
