package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/observability/logger"
	"github.com/smallbiznis/cableledger/internal/observability/metrics"
	"github.com/smallbiznis/cableledger/internal/observability/tracing"
	"github.com/smallbiznis/cableledger/internal/ratelimit"
	subscriberdomain "github.com/smallbiznis/cableledger/internal/subscriber/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db"
	"github.com/smallbiznis/cableledger/pkg/rls"
	"github.com/smallbiznis/cableledger/pkg/telemetry/correlation"
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
	SubscriberRepo subscriberdomain.Repository
	AuditSvc       auditdomain.Service
	Billing        *config.BillingConfigHolder `optional:"true"`
	Locker         *ratelimit.Locker           `optional:"true"`
	Metrics        *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	subscriberRepo subscriberdomain.Repository
	auditSvc       auditdomain.Service
	billing        *config.BillingConfigHolder
	locker         *ratelimit.Locker
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("bill.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		subscriberRepo: p.SubscriberRepo,
		auditSvc:       p.AuditSvc,
		billing:        p.Billing,
		locker:         p.Locker,
		metrics:        p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, scope tenantdomain.Scope, req domain.GenerateRequest) (domain.GenerateResult, error) {
	scopeID, err := scope.WriteID()
	if err != nil {
		return domain.GenerateResult{}, err
	}
	period, err := domain.ParsePeriod(req.Month, req.Year)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	trigger := strings.TrimSpace(req.Trigger)
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	ctx, span := tracing.StartSpan(ctx, "bill.generate",
		attribute.String("scope_id", scopeID.String()),
		attribute.String("billing.period", period.String()),
	)
	defer span.End()

	log := logger.WithContext(ctx, s.log).With(
		zap.String("scope_id", scopeID.String()),
		zap.String("period", period.String()),
		zap.String("trigger", trigger),
		zap.String("correlation_id", correlationID),
	)

	release, err := s.acquire(ctx, scopeID, period)
	if err != nil {
		tracing.Fail(span, err)
		return domain.GenerateResult{}, err
	}
	defer release()

	subscribers, err := s.subscriberRepo.ListActive(ctx, s.db, scope)
	if err != nil {
		tracing.Fail(span, err)
		return domain.GenerateResult{}, err
	}

	result := domain.GenerateResult{
		ScopeID: scopeID,
		Month:   period.MonthName(),
		Year:    period.Year,
		Created: []domain.GenerationItem{},
		Skipped: []domain.GenerationItem{},
		Failed:  []domain.GenerationItem{},
	}

	var createdBy *snowflake.ID
	if principal := scope.Principal(); principal != 0 && trigger == domain.TriggerManual {
		createdBy = &principal
	}

	for _, sub := range subscribers {
		if sub == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, domain.GenerationItem{SubscriberID: sub.ID, Reason: failureReason(err)})
			continue
		}

		item, created, err := s.generateOne(ctx, scope, sub.ID, period, createdBy)
		switch {
		case err != nil:
			log.Warn("bill generation failed for subscriber",
				zap.String("subscriber_id", sub.ID.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, domain.GenerationItem{SubscriberID: sub.ID, Reason: failureReason(err)})
		case created:
			result.Created = append(result.Created, item)
		default:
			result.Skipped = append(result.Skipped, item)
		}
	}

	s.metrics.RecordGeneration(ctx, trigger, len(result.Created), len(result.Skipped), len(result.Failed))
	span.SetAttributes(tracing.SafeAttributes(attribute.String("billing.outcome", result.Outcome()))...)
	log.Info("bill generation finished",
		zap.Int("examined", result.Examined()),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)

	targetID := scopeID.String()
	_ = s.auditSvc.AuditLog(ctx, &scopeID, "", nil, auditdomain.ActionBillGenerate, auditdomain.TargetScope, &targetID, map[string]any{
		"month":          result.Month,
		"year":           result.Year,
		"trigger":        trigger,
		"created":        len(result.Created),
		"skipped":        len(result.Skipped),
		"failed":         len(result.Failed),
		"correlation_id": correlationID,
	})

	return result, nil
}

// generateOne bills one subscriber in its own transaction. created is false
// when the subscriber was skipped.
func (s *Service) generateOne(ctx context.Context, scope tenantdomain.Scope, subscriberID snowflake.ID, period domain.Period, createdBy *snowflake.ID) (domain.GenerationItem, bool, error) {
	item := domain.GenerationItem{SubscriberID: subscriberID}
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithScope(tx, int64(scope.ID())); err != nil {
			return err
		}
		ok, err := s.subscriberRepo.Lock(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if !ok {
			return subscriberdomain.ErrNotFound
		}
		sub, err := s.subscriberRepo.FindByID(ctx, tx, scope, subscriberID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriberdomain.ErrNotFound
		}

		existing, err := s.repo.FindByPeriod(ctx, tx, subscriberID, period)
		if err != nil {
			return err
		}
		if existing != nil {
			item.BillID = &existing.ID
			item.Reason = domain.ReasonAlreadyBilled
			return nil
		}
		if !sub.Active() {
			return domain.ErrSubscriberInactive
		}

		now := s.clock.Now().UTC()
		bill := domain.NewBill(s.genID.Generate(), sub.ScopeID, sub.ID, period, sub.PackageAmount, sub.PreviousBalance, now)
		bill.CreatedBy = createdBy
		if err := s.repo.Insert(ctx, tx, &bill); err != nil {
			return err
		}
		if err := s.subscriberRepo.UpdateBalance(ctx, tx, sub.ID, sub.PreviousBalance.Add(sub.PackageAmount), now); err != nil {
			return err
		}

		item.BillID = &bill.ID
		created = true
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.GenerationItem{SubscriberID: subscriberID, Reason: domain.ReasonAlreadyBilled}, false, nil
		}
		return domain.GenerationItem{}, false, err
	}
	return item, created, nil
}

func (s *Service) acquire(ctx context.Context, scopeID snowflake.ID, period domain.Period) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := ratelimit.GenerationLockKey(scopeID.String(), period.Year, period.Month)
	lease, err := s.locker.Acquire(ctx, key, s.billing.Get().LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, domain.ErrGenerationInProgress
	}
	if err != nil {
		s.log.Warn("generation lock unavailable; relying on unique index",
			zap.String("key", key),
			zap.Error(err),
		)
		return func() {}, nil
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release generation lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) GetByID(ctx context.Context, scope tenantdomain.Scope, id string) (domain.Bill, error) {
	billID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Bill{}, err
	}
	bill, err := s.repo.FindByID(ctx, s.db, scope, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil {
		return domain.Bill{}, domain.ErrNotFound
	}
	return *bill, nil
}

func (s *Service) ListForSubscriber(ctx context.Context, scope tenantdomain.Scope, subscriberID string) ([]domain.Bill, error) {
	subID, err := parseID(subscriberID, subscriberdomain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriberRepo.FindByID(ctx, s.db, scope, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriberdomain.ErrNotFound
	}

	items, err := s.repo.ListForSubscriber(ctx, s.db, scope, subID)
	if err != nil {
		return nil, err
	}
	bills := make([]domain.Bill, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		bills = append(bills, *item)
	}
	return bills, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "deadline_exceeded"
	case errors.Is(err, subscriberdomain.ErrNotFound):
		return subscriberdomain.ErrNotFound.Error()
	case errors.Is(err, domain.ErrSubscriberInactive):
		return domain.ReasonInactive
	default:
		return metrics.ClassifySchedulerJobReason(err)
	}
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
