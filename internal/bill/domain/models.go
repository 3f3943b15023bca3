package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
)

// Bill is one subscriber's charge for one period. PackageAmount,
// PreviousBalance and TotalPayable are fixed at creation; PaidAmount grows
// with payments and RemainingBalance and Status are always derived.
type Bill struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	ScopeID          snowflake.ID    `gorm:"not null;index" json:"scope_id"`
	SubscriberID     snowflake.ID    `gorm:"not null;index" json:"subscriber_id"`
	Month            string          `gorm:"not null" json:"month"`
	MonthNumber      int             `gorm:"not null" json:"-"`
	Year             int             `gorm:"not null" json:"year"`
	PackageAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"package_amount"`
	PreviousBalance  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"previous_balance"`
	TotalPayable     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_payable"`
	PaidAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"paid_amount"`
	RemainingBalance decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"remaining_balance"`
	Status           Status          `gorm:"not null" json:"status"`
	Version          int64           `gorm:"not null" json:"-"`
	CreatedBy        *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

// NewBill snapshots a subscriber's package and running balance for period.
func NewBill(id, scopeID, subscriberID snowflake.ID, period Period, packageAmount, previousBalance decimal.Decimal, at time.Time) Bill {
	b := Bill{
		ID:              id,
		ScopeID:         scopeID,
		SubscriberID:    subscriberID,
		Month:           period.MonthName(),
		MonthNumber:     int(period.Month),
		Year:            period.Year,
		PackageAmount:   packageAmount,
		PreviousBalance: previousBalance,
		TotalPayable:    previousBalance.Add(packageAmount),
		PaidAmount:      decimal.Zero,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	b.Recompute()
	return b
}

// Recompute derives RemainingBalance and Status from TotalPayable and PaidAmount.
func (b *Bill) Recompute() {
	b.RemainingBalance = b.TotalPayable.Sub(b.PaidAmount)
	b.Status = DeriveStatus(b.PaidAmount, b.TotalPayable)
}

// ApplyPayment adds amount to PaidAmount. Overpayment is allowed and leaves
// a negative RemainingBalance.
func (b *Bill) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b.PaidAmount = b.PaidAmount.Add(amount)
	b.UpdatedAt = at
	b.Recompute()
	return nil
}

// DeriveStatus is Paid once paid covers total, Unpaid while nothing is paid,
// Partial otherwise. Paid wins when total is not positive.
func DeriveStatus(paid, total decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsZero():
		return StatusUnpaid
	default:
		return StatusPartial
	}
}
