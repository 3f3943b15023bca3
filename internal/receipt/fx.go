package receipt

import (
	"github.com/smallbiznis/cableledger/internal/receipt/repository"
	"github.com/smallbiznis/cableledger/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
