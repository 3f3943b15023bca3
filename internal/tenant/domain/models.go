package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner       Role = "owner"
	RoleTenantAdmin Role = "tenant_admin"
	RoleOperator    Role = "operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleTenantAdmin, RoleOperator:
		return true
	}
	return false
}

// Tenant is an operator account. Scoped roles own or inherit a scope.
type Tenant struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	ParentID     *snowflake.ID `gorm:"column:parent_id" json:"parent_id,omitempty"`
	Name         string        `gorm:"not null" json:"name"`
	Slug         string        `gorm:"not null" json:"slug"`
	Email        string        `gorm:"not null" json:"email"`
	PasswordHash string        `gorm:"column:password_hash" json:"-"`
	Role         Role          `gorm:"not null" json:"role"`
	Blocked      bool          `gorm:"not null;default:false" json:"blocked"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }
