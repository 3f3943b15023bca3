package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

// ListFilter pages newest first. Snowflake ids order by creation time, so
// Before alone is a stable cursor.
type ListFilter struct {
	Scope      tenantdomain.Scope
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Before     snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
