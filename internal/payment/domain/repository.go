package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

type ListFilter struct {
	Scope        tenantdomain.Scope
	SubscriberID snowflake.ID
	Cursor       *Cursor
	Limit        int
}

type Cursor struct {
	ID     snowflake.ID
	PaidAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	UpdateDelivery(ctx context.Context, db *gorm.DB, payment *Payment) error
}
