package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Tenant, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Tenant, error)
}
