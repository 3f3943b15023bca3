package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/audit/repository"
	"github.com/smallbiznis/cableledger/internal/auditcontext"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	svc    auditdomain.Service
	owner  tenantdomain.Scope
	adminA tenantdomain.Scope
	adminB tenantdomain.Scope
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})

	return fixture{
		svc:    svc,
		owner:  ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleOwner, nil)),
		adminA: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
		adminB: ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)),
	}
}

func (f fixture) record(t *testing.T, ctx context.Context, scopeID snowflake.ID, action string, metadata map[string]any) {
	t.Helper()
	target := "target-" + action
	require.NoError(t, f.svc.AuditLog(ctx, &scopeID, "", nil, action, auditdomain.TargetSubscriber, &target, metadata))
}

func TestAuditLogResolvesActorAndMasksContact(t *testing.T) {
	f := newFixture(t)
	ctx := auditcontext.WithActor(context.Background(), string(auditdomain.ActorTypeTenant), "77")
	ctx = auditcontext.WithRequestID(ctx, "req-1")

	f.record(t, ctx, f.adminA.ID(), auditdomain.ActionSubscriberCreate, map[string]any{
		"contact": "9876543210",
		"plan":    "basic",
	})

	resp, err := f.svc.List(context.Background(), f.adminA, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "tenant", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	assert.Equal(t, "****3210", entry.Metadata["contact"])
	assert.Equal(t, "basic", entry.Metadata["plan"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	f := newFixture(t)
	f.record(t, context.Background(), f.adminA.ID(), auditdomain.ActionBillGenerate, nil)

	resp, err := f.svc.List(context.Background(), f.adminA, auditdomain.ListAuditLogRequest{ActorType: "SYSTEM"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Nil(t, resp.AuditLogs[0].ActorID)

	err = f.svc.AuditLog(context.Background(), nil, "", nil, "  ", "x", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListIsolatesScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, ctx, f.adminA.ID(), auditdomain.ActionPaymentRecord, nil)
	f.record(t, ctx, f.adminB.ID(), auditdomain.ActionPaymentRecord, nil)

	resp, err := f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, f.adminA.ID(), *resp.AuditLogs[0].ScopeID)

	resp, err = f.svc.List(ctx, f.owner, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)

	_, err = f.svc.List(ctx, tenantdomain.Scope{}, auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, tenantdomain.ErrEmptyScope)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, action := range []string{
		auditdomain.ActionSubscriberCreate,
		auditdomain.ActionSubscriberUpdate,
		auditdomain.ActionSubscriberDelete,
	} {
		f.record(t, ctx, f.adminA.ID(), action, nil)
	}

	first, err := f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, auditdomain.ActionSubscriberDelete, first.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionSubscriberUpdate, first.AuditLogs[1].Action)

	second, err := f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, auditdomain.ActionSubscriberCreate, second.AuditLogs[0].Action)
}

func TestListRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{ActorType: "robot"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidActorType)

	_, err = f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = f.svc.List(ctx, f.adminA, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
