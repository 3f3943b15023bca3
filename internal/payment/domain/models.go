package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeCash         Mode = "Cash"
	ModeUPI          Mode = "UPI"
	ModeBankTransfer Mode = "BankTransfer"
	ModeCheque       Mode = "Cheque"
	ModeCard         Mode = "Card"
)

var modes = []Mode{ModeCash, ModeUPI, ModeBankTransfer, ModeCheque, ModeCard}

// ParseMode matches case-insensitively and ignores spaces, so "bank transfer"
// is accepted.
func ParseMode(value string) (Mode, error) {
	normalized := strings.Join(strings.Fields(value), "")
	for _, mode := range modes {
		if strings.EqualFold(normalized, string(mode)) {
			return mode, nil
		}
	}
	return "", ErrInvalidMode
}

// Payment is an append-only record of money applied to a bill. Only the
// delivery flags change after insert.
type Payment struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	ScopeID          snowflake.ID    `gorm:"not null;index" json:"scope_id"`
	SubscriberID     snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	BillID           snowflake.ID    `gorm:"not null;index" json:"bill_id"`
	ReceiptID        string          `gorm:"not null" json:"receipt_id"`
	PaidAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"paid_amount"`
	PaymentMode      Mode            `gorm:"not null" json:"payment_mode"`
	RemainingBalance decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"remaining_balance"`
	TransactionRef   *string         `json:"transaction_ref,omitempty"`
	CollectedBy      snowflake.ID    `gorm:"not null" json:"collected_by"`
	ReceiptSent      bool            `gorm:"not null" json:"receipt_sent"`
	WhatsappSent     bool            `gorm:"not null" json:"whatsapp_sent"`
	SMSSent          bool            `gorm:"column:sms_sent;not null" json:"sms_sent"`
	PaidAt           time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
