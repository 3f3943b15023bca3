package rls

import (
	"strconv"

	"gorm.io/gorm"
)

// WithScope pins the postgres session variable read by the row level
// security policies for the rest of the transaction. Other dialects are
// left untouched.
func WithScope(tx *gorm.DB, scopeID int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_scope_id', ?, true)",
		strconv.FormatInt(scopeID, 10),
	).Error
}

// UnrestrictedMarker is the session value the policies accept for the owner role.
const UnrestrictedMarker = "*"

// WithUnrestricted marks the transaction as running for the owner role.
func WithUnrestricted(tx *gorm.DB) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_scope_id', ?, true)", UnrestrictedMarker).Error
}
