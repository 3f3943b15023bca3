package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	"github.com/smallbiznis/cableledger/internal/subscriber/domain"
	"github.com/smallbiznis/cableledger/internal/subscriber/repository"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    domain.Service
	audit  *ledgertest.AuditRecorder
	scopeA tenantdomain.Scope
	scopeB tenantdomain.Scope
	owner  tenantdomain.Scope
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	audit := &ledgertest.AuditRecorder{}

	svc := New(Params{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		AuditSvc: audit,
	})

	return fixture{
		db:     db,
		svc:    svc,
		audit:  audit,
		scopeA: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
		scopeB: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
		owner:  ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleOwner, nil)),
	}
}

func createReq(identifier, contact string) domain.CreateSubscriberRequest {
	return domain.CreateSubscriberRequest{
		Identifier:    identifier,
		Name:          "Subscriber " + identifier,
		Contact:       contact,
		PackageAmount: decimal.NewFromInt(300),
	}
}

func TestCreateSubscriber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, f.scopeA, createReq("C-001", "98765 43210"))
	require.NoError(t, err)
	assert.Equal(t, f.scopeA.ID(), sub.ScopeID)
	assert.Equal(t, f.scopeA.Principal(), sub.CreatedBy)
	assert.Equal(t, "9876543210", sub.Contact)
	assert.True(t, sub.PreviousBalance.IsZero())
	assert.Equal(t, domain.StatusActive, sub.Status)

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "subscriber.create", events[0].Action)
	assert.Equal(t, "****3210", events[0].Metadata["contact"])
}

func TestCreateSubscriberValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner, createReq("C-001", "9876543210"))
	assert.ErrorIs(t, err, tenantdomain.ErrScopeRequired)

	_, err = f.svc.Create(ctx, tenantdomain.Scope{}, createReq("C-001", "9876543210"))
	assert.ErrorIs(t, err, tenantdomain.ErrEmptyScope)

	req := createReq("C-001", "9876543210")
	req.PackageAmount = decimal.NewFromInt(-1)
	_, err = f.svc.Create(ctx, f.scopeA, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPackageAmount)

	_, err = f.svc.Create(ctx, f.scopeA, createReq("C-001", "call-me"))
	assert.ErrorIs(t, err, domain.ErrInvalidContact)

	_, err = f.svc.Create(ctx, f.scopeA, createReq(" ", "9876543210"))
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestUniquenessIsScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.scopeA, createReq("C-001", "9876543210"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.scopeB, createReq("C-001", "9876543210"))
	require.NoError(t, err, "another scope may reuse identifier and contact")

	_, err = f.svc.Create(ctx, f.scopeA, createReq("C-002", "9876543210"))
	assert.ErrorIs(t, err, domain.ErrDuplicateContact)

	_, err = f.svc.Create(ctx, f.scopeA, createReq("C-001", "9000000001"))
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)
}

func TestGetAndListAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subA, err := f.svc.Create(ctx, f.scopeA, createReq("C-001", "9876543210"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.scopeB, createReq("C-001", "9876543210"))
	require.NoError(t, err)

	_, err = f.svc.GetByID(ctx, f.scopeB, subA.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.svc.GetByID(ctx, f.owner, subA.ID.String())
	require.NoError(t, err)
	assert.Equal(t, subA.ID, got.ID)

	listA, err := f.svc.List(ctx, f.scopeA, domain.ListSubscriberRequest{})
	require.NoError(t, err)
	require.Len(t, listA.Subscribers, 1)
	assert.Equal(t, subA.ID, listA.Subscribers[0].ID)

	all, err := f.svc.List(ctx, f.owner, domain.ListSubscriberRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Subscribers, 2)

	_, err = f.svc.GetByID(ctx, f.scopeA, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, contact := range []string{"9000000001", "9000000002", "9000000003"} {
		_, err := f.svc.Create(ctx, f.scopeA, createReq("C-00"+string(rune('1'+i)), contact))
		require.NoError(t, err)
	}

	req := domain.ListSubscriberRequest{}
	req.PageSize = 2
	first, err := f.svc.List(ctx, f.scopeA, req)
	require.NoError(t, err)
	require.Len(t, first.Subscribers, 2)
	require.True(t, first.HasMore)

	req.PageToken = first.NextPageToken
	second, err := f.svc.List(ctx, f.scopeA, req)
	require.NoError(t, err)
	require.Len(t, second.Subscribers, 1)
	assert.False(t, second.HasMore)

	seen := map[string]bool{}
	for _, sub := range append(first.Subscribers, second.Subscribers...) {
		assert.False(t, seen[sub.Identifier])
		seen[sub.Identifier] = true
	}

	req.PageToken = "garbage"
	_, err = f.svc.List(ctx, f.scopeA, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestUpdateNeverTouchesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, f.scopeA, createReq("C-001", "9876543210"))
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE subscribers SET previous_balance = ? WHERE id = ?`, "150", sub.ID).Error)

	amount := decimal.NewFromInt(450)
	name := "Renamed"
	updated, err := f.svc.Update(ctx, f.scopeA, sub.ID.String(), domain.UpdateSubscriberRequest{
		Name:          &name,
		PackageAmount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.PackageAmount.Equal(amount))
	assert.True(t, updated.PreviousBalance.Equal(decimal.NewFromInt(150)))

	_, err = f.svc.Update(ctx, f.scopeB, sub.ID.String(), domain.UpdateSubscriberRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	billed, err := f.svc.Create(ctx, f.scopeA, createReq("C-001", "9876543210"))
	require.NoError(t, err)
	fresh, err := f.svc.Create(ctx, f.scopeA, createReq("C-002", "9876543211"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, f.db.Exec(
		`INSERT INTO bills (id, scope_id, subscriber_id, month, month_number, year, package_amount, previous_balance,
			total_payable, paid_amount, remaining_balance, status, version, created_at, updated_at)
		 VALUES (1, ?, ?, 'January', 1, 2024, '300', '0', '300', '0', '300', 'Unpaid', 0, ?, ?)`,
		billed.ScopeID, billed.ID, now, now,
	).Error)

	err = f.svc.Delete(ctx, f.scopeA, billed.ID.String())
	assert.ErrorIs(t, err, domain.ErrHasBills)

	inactive, err := f.svc.Deactivate(ctx, f.scopeA, billed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, inactive.Status)

	still, err := f.svc.GetByID(ctx, f.scopeA, billed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, still.Status)

	require.NoError(t, f.svc.Delete(ctx, f.scopeA, fresh.ID.String()))
	_, err = f.svc.GetByID(ctx, f.scopeA, fresh.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Contains(t, f.audit.Actions(), "subscriber.deactivate")
	assert.Contains(t, f.audit.Actions(), "subscriber.delete")
}
