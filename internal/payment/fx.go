package payment

import (
	"github.com/smallbiznis/cableledger/internal/payment/repository"
	"github.com/smallbiznis/cableledger/internal/payment/service"
	"github.com/smallbiznis/cableledger/internal/receipt/render"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(render.New),
	fx.Provide(service.New),
)
