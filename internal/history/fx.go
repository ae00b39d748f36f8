package history

import (
	"github.com/repartia/treasury/internal/history/service"
	"go.uber.org/fx"
)

var Module = fx.Module("history.service",
	fx.Provide(service.NewService),
)
