package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

type ListFilter struct {
	Scope  tenantdomain.Scope
	Status Status
	Search string
	Cursor *Cursor
	Limit  int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscriber *Subscriber) error
	FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*Subscriber, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Subscriber, error)
	ListActive(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope) ([]*Subscriber, error)
	Update(ctx context.Context, db *gorm.DB, subscriber *Subscriber) error
	// Lock bumps the row version, serialising writers on the subscriber until
	// the surrounding transaction ends. It reports false when no row matched.
	Lock(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (bool, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance decimal.Decimal, at time.Time) error
	HasBills(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) error
}
