package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/bill/repository"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	"github.com/smallbiznis/cableledger/internal/ratelimit"
	subscriberdomain "github.com/smallbiznis/cableledger/internal/subscriber/domain"
	subscriberrepo "github.com/smallbiznis/cableledger/internal/subscriber/repository"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    domain.Service
	audit  *ledgertest.AuditRecorder
	subs   subscriberdomain.Repository
	scopeA tenantdomain.Scope
	scopeB tenantdomain.Scope
	owner  tenantdomain.Scope
}

func newFixture(t *testing.T, locker *ratelimit.Locker) fixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	audit := &ledgertest.AuditRecorder{}
	subs := subscriberrepo.Provide()

	svc := New(Params{
		DB:             db,
		Log:            zaptest.NewLogger(t),
		GenID:          node,
		Clock:          clock.NewFakeClock(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)),
		Repo:           repository.Provide(),
		SubscriberRepo: subs,
		AuditSvc:       audit,
		Billing:        config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Locker:         locker,
	})

	return fixture{
		db:     db,
		node:   node,
		svc:    svc,
		audit:  audit,
		subs:   subs,
		scopeA: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
		scopeB: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
		owner:  ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleOwner, nil)),
	}
}

func (f fixture) addSubscriber(t *testing.T, scope tenantdomain.Scope, identifier string, pkg int64, status subscriberdomain.Status) subscriberdomain.Subscriber {
	t.Helper()
	now := time.Now().UTC()
	sub := subscriberdomain.Subscriber{
		ID:              f.node.Generate(),
		ScopeID:         scope.ID(),
		CreatedBy:       scope.Principal(),
		Identifier:      identifier,
		Name:            identifier,
		Contact:         contactFor(f.node.Generate()),
		PackageAmount:   decimal.NewFromInt(pkg),
		PreviousBalance: decimal.Zero,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.subs.Insert(context.Background(), f.db, &sub))
	return sub
}

func contactFor(id snowflake.ID) string {
	s := id.String()
	return "9" + s[len(s)-9:]
}

func (f fixture) balance(t *testing.T, scope tenantdomain.Scope, id snowflake.ID) decimal.Decimal {
	t.Helper()
	sub, err := f.subs.FindByID(context.Background(), f.db, scope, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub.PreviousBalance
}

func TestGenerateCreatesThenSkips(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub := f.addSubscriber(t, f.scopeA, "S", 300, subscriberdomain.StatusActive)

	res, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Jan", Year: 2024})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)
	assert.Equal(t, "January", res.Month)

	bill, err := f.svc.GetByID(ctx, f.scopeA, res.Created[0].BillID.String())
	require.NoError(t, err)
	assert.True(t, bill.TotalPayable.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, domain.StatusUnpaid, bill.Status)
	assert.True(t, f.balance(t, f.scopeA, sub.ID).Equal(decimal.NewFromInt(300)))

	again, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "january", Year: 2024})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	require.Len(t, again.Skipped, 1)
	assert.Equal(t, domain.ReasonAlreadyBilled, again.Skipped[0].Reason)
	assert.Equal(t, bill.ID, *again.Skipped[0].BillID)
	assert.True(t, f.balance(t, f.scopeA, sub.ID).Equal(decimal.NewFromInt(300)))

	feb, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Feb", Year: 2024})
	require.NoError(t, err)
	require.Len(t, feb.Created, 1)
	febBill, err := f.svc.GetByID(ctx, f.scopeA, feb.Created[0].BillID.String())
	require.NoError(t, err)
	assert.True(t, febBill.PreviousBalance.Equal(decimal.NewFromInt(300)))
	assert.True(t, febBill.TotalPayable.Equal(decimal.NewFromInt(600)))
	assert.True(t, f.balance(t, f.scopeA, sub.ID).Equal(decimal.NewFromInt(600)))

	assert.Equal(t, []string{"bill.generate", "bill.generate", "bill.generate"}, f.audit.Actions())
}

func TestGenerateOnlyTouchesOwnScope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.addSubscriber(t, f.scopeA, "A1", 300, subscriberdomain.StatusActive)
	f.addSubscriber(t, f.scopeA, "A2", 200, subscriberdomain.StatusActive)
	f.addSubscriber(t, f.scopeA, "A3", 200, subscriberdomain.StatusInactive)
	other := f.addSubscriber(t, f.scopeB, "B1", 500, subscriberdomain.StatusActive)

	res, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "March", Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Examined())
	assert.Len(t, res.Created, 2)

	bills, err := f.svc.ListForSubscriber(ctx, f.scopeB, other.ID.String())
	require.NoError(t, err)
	assert.Empty(t, bills)

	_, err = f.svc.ListForSubscriber(ctx, f.scopeA, other.ID.String())
	assert.ErrorIs(t, err, subscriberdomain.ErrNotFound)
}

func TestGenerateRequiresConcreteScope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.addSubscriber(t, f.scopeA, "A1", 300, subscriberdomain.StatusActive)

	_, err := f.svc.Generate(ctx, f.owner, domain.GenerateRequest{Month: "Jan", Year: 2024})
	assert.ErrorIs(t, err, tenantdomain.ErrScopeRequired)

	narrowed, err := f.owner.Narrow(f.scopeA.ID())
	require.NoError(t, err)
	res, err := f.svc.Generate(ctx, narrowed, domain.GenerateRequest{Month: "Jan", Year: 2024})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)

	_, err = f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Smarch", Year: 2024})
	assert.ErrorIs(t, err, domain.ErrInvalidMonth)
	_, err = f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Jan", Year: 99})
	assert.ErrorIs(t, err, domain.ErrInvalidYear)
}

func TestGenerateReportsPartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ok := f.addSubscriber(t, f.scopeA, "OK", 300, subscriberdomain.StatusActive)
	broken := f.addSubscriber(t, f.scopeA, "BROKEN", 300, subscriberdomain.StatusActive)

	err := f.db.Callback().Raw().Before("gorm:raw").Register("fail_one_bill", func(tx *gorm.DB) {
		if !strings.Contains(tx.Statement.SQL.String(), "INSERT INTO bills") {
			return
		}
		for _, v := range tx.Statement.Vars {
			if id, ok := v.(snowflake.ID); ok && id == broken.ID {
				_ = tx.AddError(errors.New("disk full"))
				return
			}
		}
	})
	require.NoError(t, err)

	res, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Jan", Year: 2024})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, ok.ID, res.Created[0].SubscriberID)
	assert.Equal(t, broken.ID, res.Failed[0].SubscriberID)
	assert.Equal(t, 2, res.Examined())

	assert.True(t, f.balance(t, f.scopeA, broken.ID).IsZero(), "failed subscriber keeps its balance")
	assert.True(t, f.balance(t, f.scopeA, ok.ID).Equal(decimal.NewFromInt(300)))
}

func TestListForSubscriberNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub := f.addSubscriber(t, f.scopeA, "S", 100, subscriberdomain.StatusActive)

	for _, p := range []struct {
		month string
		year  int
	}{{"Nov", 2023}, {"Feb", 2024}, {"Dec", 2023}, {"Jan", 2024}} {
		_, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: p.month, Year: p.year})
		require.NoError(t, err)
	}

	bills, err := f.svc.ListForSubscriber(ctx, f.scopeA, sub.ID.String())
	require.NoError(t, err)
	require.Len(t, bills, 4)

	got := make([]string, 0, len(bills))
	for _, b := range bills {
		got = append(got, b.Month)
	}
	assert.Equal(t, []string{"February", "January", "December", "November"}, got)
}

func TestGenerateLockContention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	f := newFixture(t, locker)
	ctx := context.Background()
	f.addSubscriber(t, f.scopeA, "S", 100, subscriberdomain.StatusActive)

	key := ratelimit.GenerationLockKey(f.scopeA.ID().String(), 2024, time.January)
	_, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Jan", Year: 2024})
	assert.ErrorIs(t, err, domain.ErrGenerationInProgress)

	res, err := f.svc.Generate(ctx, f.scopeA, domain.GenerateRequest{Month: "Feb", Year: 2024})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	assert.False(t, mr.Exists(ratelimit.GenerationLockKey(f.scopeA.ID().String(), 2024, time.February)))
}

func TestSubscriberDeactivatedAfterListingFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub := f.addSubscriber(t, f.scopeA, "S", 300, subscriberdomain.StatusInactive)
	period, err := domain.ParsePeriod("January", 2024)
	require.NoError(t, err)

	svc := f.svc.(*Service)
	_, created, err := svc.generateOne(ctx, f.scopeA, sub.ID, period, nil)
	require.ErrorIs(t, err, domain.ErrSubscriberInactive)
	assert.False(t, created)
	assert.Equal(t, domain.ReasonInactive, failureReason(err))

	bills, err := f.svc.ListForSubscriber(ctx, f.scopeA, sub.ID.String())
	require.NoError(t, err)
	assert.Empty(t, bills)
	assert.True(t, f.balance(t, f.scopeA, sub.ID).IsZero())
}
