package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
)

type RecordPaymentRequest struct {
	SubscriberID   string
	BillID         string
	Amount         decimal.Decimal
	PaymentMode    string
	TransactionRef string
}

// RecordPaymentResult carries the new payment and the bill it was applied to.
type RecordPaymentResult struct {
	Payment Payment         `json:"payment"`
	Bill    billdomain.Bill `json:"bill"`
}

type ListPaymentRequest struct {
	pagination.Pagination
	SubscriberID string
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

// DeliveryUpdate sets the notification flags that are present.
type DeliveryUpdate struct {
	ReceiptSent  *bool
	WhatsappSent *bool
	SMSSent      *bool
}

func (u DeliveryUpdate) Empty() bool {
	return u.ReceiptSent == nil && u.WhatsappSent == nil && u.SMSSent == nil
}

type Service interface {
	RecordPayment(ctx context.Context, scope tenantdomain.Scope, req RecordPaymentRequest) (RecordPaymentResult, error)
	GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (Payment, error)
	List(ctx context.Context, scope tenantdomain.Scope, req ListPaymentRequest) (ListPaymentResponse, error)
	UpdateDelivery(ctx context.Context, scope tenantdomain.Scope, id string, update DeliveryUpdate) (Payment, error)
	// Receipt renders the payment receipt as a PDF.
	Receipt(ctx context.Context, scope tenantdomain.Scope, id string) ([]byte, error)
}

var (
	ErrNotFound           = errors.New("payment_not_found")
	ErrInvalidID          = errors.New("invalid_payment_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidMode        = errors.New("invalid_payment_mode")
	ErrInvalidDelivery    = errors.New("invalid_delivery_update")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrDuplicateReceiptID = errors.New("duplicate_receipt_id")
)
