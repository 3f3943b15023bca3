package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const DefaultPrefix = "RCP"

var (
	ErrInvalidScope     = errors.New("invalid_receipt_scope")
	ErrInvalidCollector = errors.New("invalid_receipt_collector")
	ErrInvalidSequence  = errors.New("invalid_receipt_sequence")
)

type Repository interface {
	// Increment advances the scope counter by one and returns the new value.
	// It must run inside the caller's transaction.
	Increment(ctx context.Context, db *gorm.DB, scopeID, collectorID snowflake.ID, at time.Time) (int64, error)
}

// Service hands out receipt ids. Next must be called with the transaction
// that inserts the payment so a rollback also returns the number.
type Service interface {
	Next(ctx context.Context, tx *gorm.DB, scopeID, collectorID snowflake.ID, at time.Time) (string, error)
}

// Format renders prefix + YY + MM + six digit sequence. Sequences past
// 999999 keep all their digits. Counters are per scope, so a receipt id is
// only unique together with its scope id and is not a global key.
func Format(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s%02d%02d%06d", prefix, at.Year()%100, int(at.Month()), seq)
}
