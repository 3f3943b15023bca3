package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db/option"
	"github.com/smallbiznis/cableledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.Tenant] {
	return repository.ProvideStore[domain.Tenant](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return r.store(db).Create(ctx, tenant)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	if id == 0 {
		return nil, nil
	}
	return r.store(db).FindOne(ctx, &domain.Tenant{ID: id})
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Tenant, error) {
	return r.store(db).FindOne(ctx, &domain.Tenant{},
		option.ApplyOperator("email", option.Equal, strings.ToLower(strings.TrimSpace(email))),
	)
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Tenant, error) {
	return r.store(db).Find(ctx, &domain.Tenant{},
		option.ApplyOperator("blocked", option.Equal, false),
		option.WithSortBy("id", "asc"),
	)
}
