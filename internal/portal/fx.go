package portal

import (
	"github.com/smallbiznis/kelas/internal/config"
	portaldomain "github.com/smallbiznis/kelas/internal/portal/domain"
	"github.com/smallbiznis/kelas/internal/portal/provider/stripe"
	"github.com/smallbiznis/kelas/internal/portal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("portal.service",
	fx.Provide(func(cfg config.Config, log *zap.Logger) portaldomain.Provider {
		return stripe.New(cfg, log)
	}),
	fx.Provide(service.NewService),
)
