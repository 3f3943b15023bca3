package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cableledger/internal/subscriber/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

const columns = `id, scope_id, created_by, identifier, name, contact, address,
	package_amount, previous_balance, status, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscriber) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscribers (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ScopeID,
		s.CreatedBy,
		s.Identifier,
		s.Name,
		s.Contact,
		s.Address,
		s.PackageAmount,
		s.PreviousBalance,
		s.Status,
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*domain.Subscriber, error) {
	var subscriber domain.Subscriber
	stmt := scope.Apply(db.WithContext(ctx).Table("subscribers").Select(columns), "scope_id").
		Where("id = ?", id).
		Limit(1)
	if err := stmt.Scan(&subscriber).Error; err != nil {
		return nil, err
	}
	if subscriber.ID == 0 {
		return nil, nil
	}
	return &subscriber, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Subscriber, error) {
	var subscribers []*domain.Subscriber
	stmt := filter.Scope.Apply(db.WithContext(ctx).Table("subscribers").Select(columns), "scope_id")

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		stmt = stmt.Where("(LOWER(name) LIKE ? OR LOWER(identifier) LIKE ? OR contact LIKE ?)", like, like, like)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Scan(&subscribers).Error; err != nil {
		return nil, err
	}
	return subscribers, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope) ([]*domain.Subscriber, error) {
	var subscribers []*domain.Subscriber
	err := scope.Apply(db.WithContext(ctx).Table("subscribers").Select(columns), "scope_id").
		Where("status = ?", domain.StatusActive).
		Order("id asc").
		Scan(&subscribers).Error
	if err != nil {
		return nil, err
	}
	return subscribers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, s *domain.Subscriber) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscribers
		 SET name = ?, contact = ?, address = ?, package_amount = ?, status = ?, updated_at = ?
		 WHERE id = ? AND scope_id = ?`,
		s.Name,
		s.Contact,
		s.Address,
		s.PackageAmount,
		s.Status,
		s.UpdatedAt,
		s.ID,
		s.ScopeID,
	).Error
}

func (r *repo) Lock(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (bool, error) {
	stmt := scope.Apply(db.WithContext(ctx).Table("subscribers"), "scope_id").
		Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if stmt.Error != nil {
		return false, stmt.Error
	}
	return stmt.RowsAffected == 1, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscribers SET previous_balance = ?, updated_at = ? WHERE id = ?`,
		balance,
		at,
		id,
	).Error
}

func (r *repo) HasBills(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM bills WHERE subscriber_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) error {
	return scope.Apply(db.WithContext(ctx).Table("subscribers"), "scope_id").
		Where("id = ?", id).
		Delete(&domain.Subscriber{}).Error
}
