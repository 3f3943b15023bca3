package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/receipt/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, scopeID, collectorID snowflake.ID, at time.Time) (int64, error) {
	db = db.WithContext(ctx)

	if err := db.Exec(
		`INSERT INTO receipt_sequences (scope_id, last_value, last_collector_id, updated_at)
		 VALUES (?, 0, ?, ?)
		 ON CONFLICT (scope_id) DO NOTHING`,
		scopeID, collectorID, at,
	).Error; err != nil {
		return 0, err
	}

	// The UPDATE holds the row lock until the surrounding transaction ends.
	stmt := db.Exec(
		`UPDATE receipt_sequences
		 SET last_value = last_value + 1, last_collector_id = ?, updated_at = ?
		 WHERE scope_id = ?`,
		collectorID, at, scopeID,
	)
	if stmt.Error != nil {
		return 0, stmt.Error
	}
	if stmt.RowsAffected != 1 {
		return 0, domain.ErrInvalidSequence
	}

	var value int64
	if err := db.Raw(
		`SELECT last_value FROM receipt_sequences WHERE scope_id = ?`,
		scopeID,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, domain.ErrInvalidSequence
	}
	return value, nil
}
