package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *Bill) error
	FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*Bill, error)
	FindByPeriod(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID, period Period) (*Bill, error)
	ListForSubscriber(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, subscriberID snowflake.ID) ([]*Bill, error)
	// Lock bumps the version of a bill owned by subscriberID inside scope and
	// reports whether it matched. Later writers block until the transaction ends.
	Lock(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id, subscriberID snowflake.ID) (bool, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, bill *Bill) error
}
