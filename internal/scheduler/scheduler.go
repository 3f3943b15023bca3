package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/cableledger/internal/auditcontext"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	obsmetrics "github.com/smallbiznis/cableledger/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobGenerateBills = "generate_bills"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	TenantSvc tenantdomain.Service
	BillSvc   billdomain.Service
	Billing   *config.BillingConfigHolder `optional:"true"`
}

// Scheduler runs the monthly bill generation pass, once per billing scope.
type Scheduler struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	tenantSvc tenantdomain.Service
	billSvc   billdomain.Service
	billing   *config.BillingConfigHolder

	mu   sync.Mutex
	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.TenantSvc == nil || p.BillSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		genID:     p.GenID,
		clock:     p.Clock,
		tenantSvc: p.TenantSvc,
		billSvc:   p.BillSvc,
		billing:   p.Billing,
	}, nil
}

func (s *Scheduler) config() Config {
	return configFrom(s.billing.Get())
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, pass, owner := s.beginPass(ctx, name)
	if owner {
		defer s.finishPass(ctx, pass)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err == nil {
		schedMetrics.MarkSuccess(name, s.clock.Now())
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
		s.passLogger(ctx, pass).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce generates bills for the current period in the billing timezone.
func (s *Scheduler) RunOnce(parent context.Context) error {
	cfg := s.config()
	return s.runJob(parent, JobGenerateBills, cfg.JobTimeout, s.GenerateBillsJob)
}

// GenerateBillsJob calls the same Generate used by the API for every billing
// scope. One scope failing does not stop the others.
func (s *Scheduler) GenerateBillsJob(ctx context.Context) error {
	cfg := s.config()
	ctx, pass, owner := s.beginPass(ctx, JobGenerateBills)
	if owner {
		defer s.finishPass(ctx, pass)
	}

	period := billdomain.PeriodOf(s.clock.Now(), cfg.Location)
	scopes, err := s.tenantSvc.BillingScopes(ctx)
	if err != nil {
		s.logScopeError(ctx, pass, "scheduler.scopes.failed", 0, err)
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	p := pool.New().WithMaxGoroutines(cfg.Concurrency).WithContext(ctx)
	for _, scope := range scopes {
		scope := scope
		p.Go(func(ctx context.Context) error {
			scopeCtx := scopeContext(ctx, scope.ID())
			result, err := s.billSvc.Generate(scopeCtx, scope, billdomain.GenerateRequest{
				Month:   period.MonthName(),
				Year:    period.Year,
				Trigger: billdomain.TriggerScheduled,
			})
			if errors.Is(err, billdomain.ErrGenerationInProgress) {
				s.passLogger(scopeCtx, pass).Info("scheduler.scope.skipped",
					zap.String("scope_id", idString(scope.ID())),
					zap.String("reason", obsmetrics.SchedulerJobReasonLockHeld),
				)
				return nil
			}
			if err != nil {
				s.logScopeError(scopeCtx, pass, "scheduler.scope.failed", scope.ID(), err)
				return fmt.Errorf("scope %s: %w", scope.ID(), err)
			}

			schedMetrics.AddBatchProcessed(JobGenerateBills, "created", len(result.Created))
			schedMetrics.AddBatchProcessed(JobGenerateBills, "skipped", len(result.Skipped))
			schedMetrics.AddBatchProcessed(JobGenerateBills, "failed", len(result.Failed))

			pass.record(result)
			s.logScopeResult(scopeCtx, pass, scope.ID(), period, result)
			return nil
		})
	}
	return p.Wait()
}

// Start registers the generation pass on the configured cron schedule. The
// schedule and timezone are read once; restart to apply changes.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg := s.config()

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger{log: s.log.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log.Sugar()}), cron.SkipIfStillRunning(cronLogger{log: s.log.Sugar()})),
	)
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("billing.schedule: %w", err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.log.Info("scheduler started",
		zap.String("schedule", cfg.Schedule),
		zap.String("timezone", cfg.Location.String()),
	)
	return nil
}

// Stop waits for a running pass to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next scheduled run, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron."+msg, append(keysAndValues, "error", err)...)
}
