package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestResolveScope(t *testing.T) {
	parent := snowflake.ID(100)
	zero := snowflake.ID(0)

	tests := []struct {
		name         string
		tenant       Tenant
		wantErr      error
		unrestricted bool
		scopeID      snowflake.ID
		orphan       bool
	}{
		{name: "owner is unrestricted", tenant: Tenant{ID: 1, Role: RoleOwner}, unrestricted: true},
		{name: "tenant admin scopes to itself", tenant: Tenant{ID: 2, Role: RoleTenantAdmin}, scopeID: 2},
		{name: "tenant admin ignores parent", tenant: Tenant{ID: 3, Role: RoleTenantAdmin, ParentID: &parent}, scopeID: 3},
		{name: "operator inherits parent", tenant: Tenant{ID: 4, Role: RoleOperator, ParentID: &parent}, scopeID: 100},
		{name: "orphan operator scopes to itself", tenant: Tenant{ID: 5, Role: RoleOperator}, scopeID: 5, orphan: true},
		{name: "operator with zero parent is orphan", tenant: Tenant{ID: 6, Role: RoleOperator, ParentID: &zero}, scopeID: 6, orphan: true},
		{name: "unknown role", tenant: Tenant{ID: 7, Role: "auditor"}, wantErr: ErrInvalidRole},
		{name: "blocked tenant", tenant: Tenant{ID: 8, Role: RoleTenantAdmin, Blocked: true}, wantErr: ErrForbidden},
		{name: "missing id", tenant: Tenant{Role: RoleOperator}, wantErr: ErrEmptyScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := ResolveScope(tt.tenant)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, scope.Valid())
				return
			}
			require.NoError(t, err)
			assert.True(t, scope.Valid())
			assert.Equal(t, tt.unrestricted, scope.Unrestricted())
			assert.Equal(t, tt.scopeID, scope.ID())
			assert.Equal(t, tt.orphan, scope.OrphanFallback())
			assert.Equal(t, tt.tenant.ID, scope.Principal())
		})
	}
}

func TestScopeWriteID(t *testing.T) {
	owner, err := ResolveScope(Tenant{ID: 1, Role: RoleOwner})
	require.NoError(t, err)
	_, err = owner.WriteID()
	assert.ErrorIs(t, err, ErrScopeRequired)

	admin, err := ResolveScope(Tenant{ID: 2, Role: RoleTenantAdmin})
	require.NoError(t, err)
	id, err := admin.WriteID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), id)

	_, err = Scope{}.WriteID()
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestScopeNarrow(t *testing.T) {
	owner, _ := ResolveScope(Tenant{ID: 1, Role: RoleOwner})
	narrowed, err := owner.Narrow(42)
	require.NoError(t, err)
	assert.False(t, narrowed.Unrestricted())
	assert.Equal(t, snowflake.ID(42), narrowed.ID())
	assert.Equal(t, RoleOwner, narrowed.Role())

	same, err := owner.Narrow(0)
	require.NoError(t, err)
	assert.True(t, same.Unrestricted())

	admin, _ := ResolveScope(Tenant{ID: 2, Role: RoleTenantAdmin})
	_, err = admin.Narrow(42)
	assert.ErrorIs(t, err, ErrForbidden)

	own, err := admin.Narrow(2)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), own.ID())
}

func TestScopeContains(t *testing.T) {
	owner, _ := ResolveScope(Tenant{ID: 1, Role: RoleOwner})
	admin, _ := ResolveScope(Tenant{ID: 2, Role: RoleTenantAdmin})

	assert.True(t, owner.Contains(99))
	assert.True(t, admin.Contains(2))
	assert.False(t, admin.Contains(3))
	assert.False(t, admin.Contains(0))
	assert.False(t, Scope{}.Contains(2))
	assert.Equal(t, "invalid", Scope{}.String())
	assert.Equal(t, "*", owner.String())
	assert.Equal(t, "2", admin.String())
}

func TestScopeApply(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	var rows []map[string]any
	err = Scope{}.Apply(db.Table("subscribers"), "scope_id").Find(&rows).Error
	assert.ErrorIs(t, err, ErrEmptyScope)

	admin, _ := ResolveScope(Tenant{ID: 2, Role: RoleTenantAdmin})
	stmt := admin.Apply(db.Table("subscribers"), "scope_id").Find(&rows).Statement
	assert.Contains(t, stmt.SQL.String(), "scope_id = ?")

	owner, _ := ResolveScope(Tenant{ID: 1, Role: RoleOwner})
	stmt = owner.Apply(db.Table("subscribers"), "scope_id").Find(&rows).Statement
	assert.NotContains(t, stmt.SQL.String(), "scope_id")
}
