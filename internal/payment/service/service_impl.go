package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/audit/masking"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/observability/logger"
	"github.com/smallbiznis/cableledger/internal/observability/metrics"
	"github.com/smallbiznis/cableledger/internal/observability/tracing"
	"github.com/smallbiznis/cableledger/internal/payment/domain"
	receiptdomain "github.com/smallbiznis/cableledger/internal/receipt/domain"
	"github.com/smallbiznis/cableledger/internal/receipt/render"
	subscriberdomain "github.com/smallbiznis/cableledger/internal/subscriber/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
	"github.com/smallbiznis/cableledger/pkg/rls"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	BillRepo       billdomain.Repository
	SubscriberRepo subscriberdomain.Repository
	TenantRepo     tenantdomain.Repository
	ReceiptSvc     receiptdomain.Service
	AuditSvc       auditdomain.Service
	Renderer       render.Renderer             `optional:"true"`
	Billing        *config.BillingConfigHolder `optional:"true"`
	Metrics        *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	billRepo       billdomain.Repository
	subscriberRepo subscriberdomain.Repository
	tenantRepo     tenantdomain.Repository
	receiptSvc     receiptdomain.Service
	auditSvc       auditdomain.Service
	renderer       render.Renderer
	billing        *config.BillingConfigHolder
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	renderer := p.Renderer
	if renderer == nil {
		renderer = render.New()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		billRepo:       p.BillRepo,
		subscriberRepo: p.SubscriberRepo,
		tenantRepo:     p.TenantRepo,
		receiptSvc:     p.ReceiptSvc,
		auditSvc:       p.AuditSvc,
		renderer:       renderer,
		billing:        p.Billing,
		metrics:        p.Metrics,
	}
}

// RecordPayment applies amount to the bill and moves the subscriber balance
// to the bill's new remaining balance. Everything commits or nothing does.
func (s *Service) RecordPayment(ctx context.Context, scope tenantdomain.Scope, req domain.RecordPaymentRequest) (domain.RecordPaymentResult, error) {
	scopeID, err := scope.WriteID()
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	subscriberID, err := parseID(req.SubscriberID, subscriberdomain.ErrInvalidID)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	billID, err := parseID(req.BillID, billdomain.ErrInvalidID)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	mode, err := domain.ParseMode(req.PaymentMode)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "payment.record",
		attribute.String("scope_id", scopeID.String()),
		attribute.String("payment.mode", string(mode)),
	)
	defer span.End()

	collectorID := scope.Principal()
	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:             s.genID.Generate(),
		ScopeID:        scopeID,
		SubscriberID:   subscriberID,
		BillID:         billID,
		PaidAmount:     amount,
		PaymentMode:    mode,
		TransactionRef: optionalString(req.TransactionRef),
		CollectedBy:    collectorID,
		PaidAt:         now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var bill billdomain.Bill

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithScope(tx, int64(scopeID)); err != nil {
			return err
		}

		ok, err := s.subscriberRepo.Lock(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if !ok {
			return subscriberdomain.ErrNotFound
		}

		// The bill must belong to this subscriber as well as this scope.
		ok, err = s.billRepo.Lock(ctx, tx, scope, billID, subscriberID)
		if err != nil {
			return err
		}
		if !ok {
			return billdomain.ErrNotFound
		}
		current, err := s.billRepo.FindByID(ctx, tx, scope, billID)
		if err != nil {
			return err
		}
		if current == nil {
			return billdomain.ErrNotFound
		}

		if err := current.ApplyPayment(amount, now); err != nil {
			return err
		}
		if err := s.billRepo.UpdatePayment(ctx, tx, current); err != nil {
			return err
		}
		if err := s.subscriberRepo.UpdateBalance(ctx, tx, subscriberID, current.RemainingBalance, now); err != nil {
			return err
		}

		receiptID, err := s.receiptSvc.Next(ctx, tx, scopeID, collectorID, now)
		if err != nil {
			return err
		}
		payment.ReceiptID = receiptID
		payment.RemainingBalance = current.RemainingBalance
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		bill = *current
		return nil
	})
	if err != nil {
		tracing.Fail(span, err)
		if db.IsDuplicateKeyErr(err) {
			return domain.RecordPaymentResult{}, domain.ErrDuplicateReceiptID
		}
		return domain.RecordPaymentResult{}, err
	}

	s.metrics.RecordPayment(ctx, string(mode), amount.InexactFloat64())
	logger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("receipt_id", payment.ReceiptID),
		zap.String("bill_id", billID.String()),
		zap.String("bill_status", string(bill.Status)),
	)

	targetID := payment.ID.String()
	_ = s.auditSvc.AuditLog(ctx, &scopeID, "", nil, auditdomain.ActionPaymentRecord, auditdomain.TargetPayment, &targetID, map[string]any{
		"receipt_id":        payment.ReceiptID,
		"subscriber_id":     subscriberID.String(),
		"bill_id":           billID.String(),
		"paid_amount":       amount.StringFixed(2),
		"payment_mode":      string(mode),
		"remaining_balance": payment.RemainingBalance.StringFixed(2),
		"bill_status":       string(bill.Status),
	})

	return domain.RecordPaymentResult{Payment: payment, Bill: bill}, nil
}

func (s *Service) GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (domain.Payment, error) {
	paymentID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Payment{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, scope, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if item == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, scope tenantdomain.Scope, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	if !scope.Valid() {
		return domain.ListPaymentResponse{}, tenantdomain.ErrEmptyScope
	}

	filter := domain.ListFilter{Scope: scope}
	if raw := strings.TrimSpace(req.SubscriberID); raw != "" {
		subscriberID, err := parseID(raw, subscriberdomain.ErrInvalidID)
		if err != nil {
			return domain.ListPaymentResponse{}, err
		}
		filter.SubscriberID = subscriberID
	}

	page := req.Pagination.Normalize()
	filter.Limit = page.PageSize
	if page.PageToken != "" {
		cursor, err := decodeCursor(page.PageToken)
		if err != nil {
			return domain.ListPaymentResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(item *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.PaidAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return domain.ListPaymentResponse{PageInfo: pageInfo, Payments: payments}, nil
}

func (s *Service) UpdateDelivery(ctx context.Context, scope tenantdomain.Scope, id string, update domain.DeliveryUpdate) (domain.Payment, error) {
	if !scope.Valid() {
		return domain.Payment{}, tenantdomain.ErrEmptyScope
	}
	if update.Empty() {
		return domain.Payment{}, domain.ErrInvalidDelivery
	}
	paymentID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Payment{}, err
	}

	var result domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyRLS(tx, scope); err != nil {
			return err
		}
		item, err := s.repo.FindByID(ctx, tx, scope, paymentID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if update.ReceiptSent != nil {
			item.ReceiptSent = *update.ReceiptSent
		}
		if update.WhatsappSent != nil {
			item.WhatsappSent = *update.WhatsappSent
		}
		if update.SMSSent != nil {
			item.SMSSent = *update.SMSSent
		}
		item.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.UpdateDelivery(ctx, tx, item); err != nil {
			return err
		}
		result = *item
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	targetID := result.ID.String()
	scopeID := result.ScopeID
	_ = s.auditSvc.AuditLog(ctx, &scopeID, "", nil, auditdomain.ActionPaymentDeliveryUpdate, auditdomain.TargetPayment, &targetID, map[string]any{
		"receipt_sent":  result.ReceiptSent,
		"whatsapp_sent": result.WhatsappSent,
		"sms_sent":      result.SMSSent,
	})
	return result, nil
}

func (s *Service) Receipt(ctx context.Context, scope tenantdomain.Scope, id string) ([]byte, error) {
	payment, err := s.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	bill, err := s.billRepo.FindByID(ctx, s.db, scope, payment.BillID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, billdomain.ErrNotFound
	}
	sub, err := s.subscriberRepo.FindByID(ctx, s.db, scope, payment.SubscriberID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriberdomain.ErrNotFound
	}

	data := render.Data{
		ReceiptID:        payment.ReceiptID,
		PaidAt:           payment.PaidAt.In(s.billing.Get().Location()).Format("02 Jan 2006 15:04"),
		SubscriberName:   sub.Name,
		Identifier:       sub.Identifier,
		Contact:          masking.MaskContact(sub.Contact),
		BillPeriod:       bill.Month + " " + strconv.Itoa(bill.Year),
		TotalPayable:     bill.TotalPayable.StringFixed(2),
		PaidAmount:       payment.PaidAmount.StringFixed(2),
		PaymentMode:      string(payment.PaymentMode),
		RemainingBalance: payment.RemainingBalance.StringFixed(2),
		CollectedBy:      payment.CollectedBy.String(),
	}
	if payment.TransactionRef != nil {
		data.TransactionRef = *payment.TransactionRef
	}
	if operator, err := s.tenantRepo.FindByID(ctx, s.db, payment.ScopeID); err == nil && operator != nil {
		data.OperatorName = operator.Name
	}
	if collector, err := s.tenantRepo.FindByID(ctx, s.db, payment.CollectedBy); err == nil && collector != nil {
		data.CollectedBy = collector.Name
	}

	return s.renderer.Render(ctx, data)
}

func applyRLS(tx *gorm.DB, scope tenantdomain.Scope) error {
	if scope.Unrestricted() {
		return rls.WithUnrestricted(tx)
	}
	return rls.WithScope(tx, int64(scope.ID()))
}

func normalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Decimal{}, domain.ErrInvalidAmount
	}
	return amount.Round(2), nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodeCursor(token string) (*domain.Cursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	paidAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(decoded.ID)
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.Cursor{ID: id, PaidAt: paidAt}, nil
}
