package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
	obscontext "github.com/smallbiznis/cableledger/internal/observability/context"
	obslogger "github.com/smallbiznis/cableledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cableledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// billingPass tallies one generation pass across all scopes. Scope workers
// report into it concurrently.
type billingPass struct {
	id        string
	job       string
	startedAt time.Time

	mu        sync.Mutex
	scopes    int
	created   int
	skipped   int
	failed    int
	scopeErrs int
}

type billingPassKey struct{}

func (p *billingPass) record(result billdomain.GenerateResult) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes++
	p.created += len(result.Created)
	p.skipped += len(result.Skipped)
	p.failed += len(result.Failed)
}

func (p *billingPass) scopeFailed() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.scopeErrs++
	p.mu.Unlock()
}

func (p *billingPass) troubled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scopeErrs > 0 || p.failed > 0
}

// beginPass attaches a pass to ctx. The bool reports whether the caller
// created it and so owns the start and finish log lines.
func (s *Scheduler) beginPass(ctx context.Context, job string) (context.Context, *billingPass, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(billingPassKey{}).(*billingPass); ok && existing != nil {
		return ctx, existing, false
	}
	pass := &billingPass{
		id:        s.genID.Generate().String(),
		job:       job,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, billingPassKey{}, pass)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	s.passLogger(ctx, pass).Info("scheduler.pass.start")
	return ctx, pass, true
}

func scopeContext(ctx context.Context, scopeID snowflake.ID) context.Context {
	if scopeID == 0 {
		return ctx
	}
	return obscontext.WithScopeID(ctx, scopeID.String())
}

func (s *Scheduler) passLogger(ctx context.Context, pass *billingPass) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if pass == nil {
		return log
	}
	return log.With(zap.String("job", pass.job), zap.String("run_id", pass.id))
}

func (s *Scheduler) finishPass(ctx context.Context, pass *billingPass) {
	if pass == nil {
		return
	}
	pass.mu.Lock()
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(pass.startedAt).Milliseconds()),
		zap.Int("scopes", pass.scopes),
		zap.Int("bills_created", pass.created),
		zap.Int("subscribers_skipped", pass.skipped),
		zap.Int("subscribers_failed", pass.failed),
		zap.Int("scope_errors", pass.scopeErrs),
	}
	pass.mu.Unlock()

	log := s.passLogger(ctx, pass)
	if pass.troubled() {
		log.Warn("scheduler.pass.finish", fields...)
		return
	}
	log.Info("scheduler.pass.finish", fields...)
}

func (s *Scheduler) logScopeError(ctx context.Context, pass *billingPass, msg string, scopeID snowflake.ID, err error) {
	if err == nil {
		return
	}
	pass.scopeFailed()
	s.passLogger(scopeContext(ctx, scopeID), pass).Error(msg,
		zap.String("scope_id", idString(scopeID)),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}

func (s *Scheduler) logScopeResult(ctx context.Context, pass *billingPass, scopeID snowflake.ID, period billdomain.Period, result billdomain.GenerateResult) {
	log := s.passLogger(ctx, pass).With(
		zap.String("scope_id", idString(scopeID)),
		zap.String("period", period.String()),
		zap.String("outcome", result.Outcome()),
	)
	if len(result.Failed) == 0 {
		log.Info("scheduler.scope.generated",
			zap.Int("created", len(result.Created)),
			zap.Int("skipped", len(result.Skipped)),
		)
		return
	}
	for _, f := range result.Failed {
		log.Warn("scheduler.subscriber.failed",
			zap.String("subscriber_id", idString(f.SubscriberID)),
			zap.String("reason", f.Reason),
		)
	}
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
