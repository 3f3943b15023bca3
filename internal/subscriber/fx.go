package subscriber

import (
	"github.com/smallbiznis/cableledger/internal/subscriber/repository"
	"github.com/smallbiznis/cableledger/internal/subscriber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscriber.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
