package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/receipt/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Repo    domain.Repository
	Billing *config.BillingConfigHolder `optional:"true"`
}

type Service struct {
	repo    domain.Repository
	billing *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{repo: p.Repo, billing: p.Billing}
}

func (s *Service) Next(ctx context.Context, tx *gorm.DB, scopeID, collectorID snowflake.ID, at time.Time) (string, error) {
	if scopeID == 0 {
		return "", domain.ErrInvalidScope
	}
	if collectorID == 0 {
		return "", domain.ErrInvalidCollector
	}

	seq, err := s.repo.Increment(ctx, tx, scopeID, collectorID, at.UTC())
	if err != nil {
		return "", err
	}

	cfg := s.billing.Get()
	prefix := strings.TrimSpace(cfg.ReceiptPrefix)
	if prefix == "" {
		prefix = domain.DefaultPrefix
	}
	return domain.Format(prefix, at.In(cfg.Location()), seq), nil
}
