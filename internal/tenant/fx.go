package tenant

import (
	"github.com/smallbiznis/cableledger/internal/tenant/repository"
	"github.com/smallbiznis/cableledger/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
