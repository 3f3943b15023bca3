package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeTenant ActorType = "tenant"
	ActorTypeSystem ActorType = "system"
)

func (a ActorType) Valid() bool {
	return a == ActorTypeTenant || a == ActorTypeSystem
}

// Ledger audit actions.
const (
	ActionTenantCreate          = "tenant.create"
	ActionTenantBootstrapOwner  = "tenant.bootstrap_owner"
	ActionScopeOrphanFallback   = "tenant.scope.orphan_fallback"
	ActionAuthorizationDenied   = "authorization.denied"
	ActionSubscriberCreate      = "subscriber.create"
	ActionSubscriberUpdate      = "subscriber.update"
	ActionSubscriberDeactivate  = "subscriber.deactivate"
	ActionSubscriberActivate    = "subscriber.activate"
	ActionSubscriberDelete      = "subscriber.delete"
	ActionBillGenerate          = "bill.generate"
	ActionPaymentRecord         = "payment.record"
	ActionPaymentDeliveryUpdate = "payment.delivery.update"
)

const (
	TargetTenant        = "tenant"
	TargetScope         = "scope"
	TargetSubscriber    = "subscriber"
	TargetPayment       = "payment"
	TargetAuthorization = "authorization"
)

// Metadata keys holding subscriber contact details. They are masked before
// an entry is stored.
var SensitiveKeys = []string{"contact", "phone", "email", "password"}

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ScopeID    *snowflake.ID     `gorm:"column:scope_id" json:"scope_id,omitempty"`
	ActorType  string            `gorm:"not null" json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"not null" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
