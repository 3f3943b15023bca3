package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/bill/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

const columns = `id, scope_id, subscriber_id, month, month_number, year, package_amount,
	previous_balance, total_payable, paid_amount, remaining_balance, status, version,
	created_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *domain.Bill) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bills (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.ScopeID,
		b.SubscriberID,
		b.Month,
		b.MonthNumber,
		b.Year,
		b.PackageAmount,
		b.PreviousBalance,
		b.TotalPayable,
		b.PaidAmount,
		b.RemainingBalance,
		b.Status,
		b.Version,
		b.CreatedBy,
		b.CreatedAt,
		b.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := scope.Apply(db.WithContext(ctx).Table("bills").Select(columns), "scope_id").
		Where("id = ?", id).
		Limit(1).
		Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID, period domain.Period) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM bills
		 WHERE subscriber_id = ? AND month = ? AND year = ?
		 LIMIT 1`,
		subscriberID,
		period.MonthName(),
		period.Year,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) ListForSubscriber(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, subscriberID snowflake.ID) ([]*domain.Bill, error) {
	var bills []*domain.Bill
	err := scope.Apply(db.WithContext(ctx).Table("bills").Select(columns), "scope_id").
		Where("subscriber_id = ?", subscriberID).
		Order("year desc, month_number desc, id desc").
		Scan(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) Lock(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id, subscriberID snowflake.ID) (bool, error) {
	stmt := scope.Apply(db.WithContext(ctx).Table("bills"), "scope_id").
		Where("id = ? AND subscriber_id = ?", id, subscriberID).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if stmt.Error != nil {
		return false, stmt.Error
	}
	return stmt.RowsAffected == 1, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, b *domain.Bill) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET paid_amount = ?, remaining_balance = ?, status = ?, updated_at = ?
		 WHERE id = ? AND scope_id = ?`,
		b.PaidAmount,
		b.RemainingBalance,
		b.Status,
		b.UpdatedAt,
		b.ID,
		b.ScopeID,
	).Error
}
