package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/payment/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
)

const columns = `id, scope_id, subscriber_id, bill_id, receipt_id, paid_amount, payment_mode,
	remaining_balance, transaction_ref, collected_by, receipt_sent, whatsapp_sent, sms_sent,
	paid_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ScopeID,
		p.SubscriberID,
		p.BillID,
		p.ReceiptID,
		p.PaidAmount,
		p.PaymentMode,
		p.RemainingBalance,
		p.TransactionRef,
		p.CollectedBy,
		p.ReceiptSent,
		p.WhatsappSent,
		p.SMSSent,
		p.PaidAt,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope tenantdomain.Scope, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := scope.Apply(db.WithContext(ctx).Table("payments").Select(columns), "scope_id").
		Where("id = ?", id).
		Limit(1).
		Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := filter.Scope.Apply(db.WithContext(ctx).Table("payments").Select(columns), "scope_id")

	if filter.SubscriberID != 0 {
		stmt = stmt.Where("subscriber_id = ?", filter.SubscriberID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((paid_at < ?) OR (paid_at = ? AND id < ?))",
			filter.Cursor.PaidAt,
			filter.Cursor.PaidAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("paid_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Scan(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) UpdateDelivery(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET receipt_sent = ?, whatsapp_sent = ?, sms_sent = ?, updated_at = ?
		 WHERE id = ? AND scope_id = ?`,
		p.ReceiptSent,
		p.WhatsappSent,
		p.SMSSent,
		p.UpdatedAt,
		p.ID,
		p.ScopeID,
	).Error
}
