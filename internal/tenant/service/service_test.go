package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	"github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	audit *ledgertest.AuditRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	audit := &ledgertest.AuditRecorder{}
	svc := New(Params{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		GenID:    ledgertest.Node(t),
		Clock:    clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config:   config.Config{AuthJWTSecret: "test-secret", AuthTokenTTL: time.Hour},
		Repo:     repository.Provide(),
		AuditSvc: audit,
	})
	return fixture{db: db, svc: svc, audit: audit}
}

func TestResolveOrphanOperatorEmitsAudit(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	orphan := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, nil)

	principal, err := f.svc.Resolve(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, principal.Scope.ID())
	assert.True(t, principal.Scope.OrphanFallback())
	assert.Equal(t, []string{"tenant.scope.orphan_fallback"}, f.audit.Actions())
}

func TestResolveOperatorWithParent(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	admin := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	operator := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &admin.ID)

	principal, err := f.svc.Resolve(context.Background(), operator.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, principal.Scope.ID())
	assert.Empty(t, f.audit.Actions())

	_, err = f.svc.Resolve(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBillingScopesDeduplicates(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	ledgertest.InsertTenant(t, f.db, node, domain.RoleOwner, nil)
	adminA := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	adminB := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &adminA.ID)
	ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &adminA.ID)

	scopes, err := f.svc.BillingScopes(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		assert.False(t, scope.Unrestricted())
		ids = append(ids, scope.ID().String())
	}
	assert.ElementsMatch(t, []string{adminA.ID.String(), adminB.ID.String()}, ids)
}

func TestCreateOperatorUnderTenantAdmin(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	admin := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	actor := domain.Principal{Tenant: admin, Scope: ledgertest.ScopeFor(t, admin)}

	created, err := f.svc.Create(context.Background(), actor, domain.CreateTenantRequest{
		Name:     "Front Desk",
		Email:    "Desk@Example.test",
		Password: "password123",
		Role:     domain.RoleOperator,
	})
	require.NoError(t, err)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, admin.ID, *created.ParentID)
	assert.Equal(t, "front-desk", created.Slug)
	assert.Equal(t, "desk@example.test", created.Email)

	_, err = f.svc.Create(context.Background(), actor, domain.CreateTenantRequest{
		Name: "Other", Email: "desk@example.test", Password: "password123", Role: domain.RoleOperator,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = f.svc.Create(context.Background(), actor, domain.CreateTenantRequest{
		Name: "Peer", Email: "peer@example.test", Password: "password123", Role: domain.RoleTenantAdmin,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestOperatorCannotCreateTenants(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	admin := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	operator := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &admin.ID)

	_, err := f.svc.Create(context.Background(), domain.Principal{Tenant: operator, Scope: ledgertest.ScopeFor(t, operator)}, domain.CreateTenantRequest{
		Name: "X", Email: "x@example.test", Password: "password123", Role: domain.RoleOperator,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAuthenticateAndVerifyToken(t *testing.T) {
	f := newFixture(t)
	owner, err := f.svc.EnsureOwner(context.Background(), "Head Office", "owner@example.test", "password123")
	require.NoError(t, err)

	again, err := f.svc.EnsureOwner(context.Background(), "Head Office", "owner@example.test", "password123")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, again.ID)

	_, err = f.svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "owner@example.test", Password: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	token, err := f.svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "owner@example.test", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)

	id, err := f.svc.VerifyToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, id)

	_, err = f.svc.VerifyToken(token.AccessToken + "x")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestNarrowToAcceptsOnlyBillingScopes(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	owner := ledgertest.InsertTenant(t, f.db, node, domain.RoleOwner, nil)
	admin := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	operator := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &admin.ID)
	orphan := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, nil)
	ownerScope := ledgertest.ScopeFor(t, owner)
	ctx := context.Background()

	narrowed, err := f.svc.NarrowTo(ctx, ownerScope, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, narrowed.ID())
	assert.Equal(t, owner.ID, narrowed.Principal())

	narrowed, err = f.svc.NarrowTo(ctx, ownerScope, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, narrowed.ID())

	_, err = f.svc.NarrowTo(ctx, ownerScope, operator.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)

	_, err = f.svc.NarrowTo(ctx, ownerScope, owner.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)

	_, err = f.svc.NarrowTo(ctx, ownerScope, node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.db.Model(&domain.Tenant{}).Where("id = ?", admin.ID).Update("blocked", true).Error)
	_, err = f.svc.NarrowTo(ctx, ownerScope, admin.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestNarrowToKeepsScopedPrincipalsInside(t *testing.T) {
	f := newFixture(t)
	node := ledgertest.Node(t)
	adminA := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	adminB := ledgertest.InsertTenant(t, f.db, node, domain.RoleTenantAdmin, nil)
	operator := ledgertest.InsertTenant(t, f.db, node, domain.RoleOperator, &adminA.ID)
	ctx := context.Background()

	scope, err := f.svc.NarrowTo(ctx, ledgertest.ScopeFor(t, operator), adminA.ID)
	require.NoError(t, err)
	assert.Equal(t, adminA.ID, scope.ID())

	_, err = f.svc.NarrowTo(ctx, ledgertest.ScopeFor(t, operator), adminB.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.NarrowTo(ctx, domain.Scope{}, adminA.ID)
	assert.ErrorIs(t, err, domain.ErrEmptyScope)
}
