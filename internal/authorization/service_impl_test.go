package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/cableledger/internal/ledgertest"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthorizeByRole(t *testing.T) {
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	audit := &ledgertest.AuditRecorder{}
	svc := NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer, AuditSvc: audit})

	admin := ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil)
	parent := admin.ID
	scopes := map[tenantdomain.Role]tenantdomain.Scope{
		tenantdomain.RoleOwner:       ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleOwner, nil)),
		tenantdomain.RoleTenantAdmin: ledgertest.ScopeFor(t, admin),
		tenantdomain.RoleOperator:    ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleOperator, &parent)),
	}

	cases := []struct {
		role    tenantdomain.Role
		object  string
		action  string
		allowed bool
	}{
		{tenantdomain.RoleOwner, ObjectBill, ActionBillGenerate, true},
		{tenantdomain.RoleOwner, ObjectAuditLog, ActionAuditLogView, true},
		{tenantdomain.RoleTenantAdmin, ObjectSubscriber, ActionSubscriberDelete, true},
		{tenantdomain.RoleTenantAdmin, ObjectTenant, ActionTenantCreate, true},
		{tenantdomain.RoleOperator, ObjectSubscriber, ActionSubscriberCreate, true},
		{tenantdomain.RoleOperator, ObjectPayment, ActionPaymentRecord, true},
		{tenantdomain.RoleOperator, ObjectBill, ActionBillView, true},
		{tenantdomain.RoleOperator, ObjectBill, ActionBillGenerate, false},
		{tenantdomain.RoleOperator, ObjectSubscriber, ActionSubscriberDeactivate, false},
		{tenantdomain.RoleOperator, ObjectSubscriber, ActionSubscriberDelete, false},
		{tenantdomain.RoleOperator, ObjectAuditLog, ActionAuditLogView, false},
		{tenantdomain.RoleOperator, ObjectTenant, ActionTenantCreate, false},
		{tenantdomain.RoleOwner, ObjectBill, ActionPaymentRecord, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+tc.action, func(t *testing.T) {
			err := svc.Authorize(context.Background(), scopes[tc.role], tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}

	assert.Contains(t, audit.Actions(), "authorization.denied")
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	svc := NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})

	scope := ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil))

	assert.ErrorIs(t, svc.Authorize(context.Background(), tenantdomain.Scope{}, ObjectBill, ActionBillView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), scope, " ", ActionBillView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(context.Background(), scope, ObjectBill, ""), ErrInvalidAction)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	db := ledgertest.OpenDB(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	second, err := NewEnforcer(db)
	require.NoError(t, err)

	policies, err := second.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 2*len(adminActions)+len(operatorActions))
}
