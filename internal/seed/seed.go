package seed

import (
	"context"
	"strings"

	"github.com/smallbiznis/cableledger/internal/config"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, tenants tenantdomain.Service, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return EnsureOwner(ctx, tenants, cfg.Bootstrap, log)
			},
		})
	}),
)

// EnsureOwner provisions the bootstrap owner account. It is a no-op when no
// owner email is configured or the account already exists.
func EnsureOwner(ctx context.Context, tenants tenantdomain.Service, cfg config.BootstrapConfig, log *zap.Logger) error {
	email := strings.TrimSpace(cfg.OwnerEmail)
	if email == "" {
		log.Debug("bootstrap owner not configured")
		return nil
	}

	owner, err := tenants.EnsureOwner(ctx, cfg.OwnerName, email, cfg.OwnerPassword)
	if err != nil {
		return err
	}

	log.Info("bootstrap owner ready", zap.String("tenant_id", owner.ID.String()))
	return nil
}
