package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Subscriber is an end customer billed every period. PreviousBalance is the
// running outstanding amount: positive is owed, negative is advance credit.
type Subscriber struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	ScopeID         snowflake.ID    `gorm:"not null;index" json:"scope_id"`
	CreatedBy       snowflake.ID    `gorm:"not null" json:"created_by"`
	Identifier      string          `gorm:"not null" json:"identifier"`
	Name            string          `gorm:"not null" json:"name"`
	Contact         string          `gorm:"not null" json:"contact"`
	Address         *string         `json:"address,omitempty"`
	PackageAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"package_amount"`
	PreviousBalance decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"previous_balance"`
	Status          Status          `gorm:"not null" json:"status"`
	Version         int64           `gorm:"not null" json:"-"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Subscriber) TableName() string { return "subscribers" }

func (s Subscriber) Active() bool { return s.Status == StatusActive }
