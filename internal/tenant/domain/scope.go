package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Scope is the resolved isolation boundary of a principal. The zero value is
// invalid; ResolveScope is the only way to obtain a usable Scope.
type Scope struct {
	resolved       bool
	unrestricted   bool
	id             snowflake.ID
	principal      snowflake.ID
	role           Role
	orphanFallback bool
}

// ResolveScope derives the scope of t.
//
//	owner        -> unrestricted
//	tenant_admin -> t.ID
//	operator     -> t.ParentID, or t.ID when the operator has no parent
//
// A scoped role never resolves to an unrestricted scope.
func ResolveScope(t Tenant) (Scope, error) {
	if t.ID == 0 {
		return Scope{}, ErrEmptyScope
	}
	if t.Blocked {
		return Scope{}, ErrForbidden
	}

	s := Scope{resolved: true, principal: t.ID, role: t.Role}
	switch t.Role {
	case RoleOwner:
		s.unrestricted = true
	case RoleTenantAdmin:
		s.id = t.ID
	case RoleOperator:
		if t.ParentID != nil && *t.ParentID != 0 {
			s.id = *t.ParentID
		} else {
			s.id = t.ID
			s.orphanFallback = true
		}
	default:
		return Scope{}, ErrInvalidRole
	}

	if !s.unrestricted && s.id == 0 {
		return Scope{}, ErrEmptyScope
	}
	return s, nil
}

func (s Scope) Valid() bool             { return s.resolved }
func (s Scope) Unrestricted() bool      { return s.resolved && s.unrestricted }
func (s Scope) Principal() snowflake.ID { return s.principal }
func (s Scope) Role() Role              { return s.role }

// ID returns the concrete scope id, or 0 for an unrestricted scope.
func (s Scope) ID() snowflake.ID { return s.id }

// OrphanFallback reports whether an operator without a parent was scoped to itself.
func (s Scope) OrphanFallback() bool { return s.orphanFallback }

// WriteID returns the scope id new records are tagged with.
func (s Scope) WriteID() (snowflake.ID, error) {
	if !s.resolved {
		return 0, ErrEmptyScope
	}
	if s.unrestricted {
		return 0, ErrScopeRequired
	}
	return s.id, nil
}

// Narrow restricts the scope to id. A scoped principal may only narrow to its
// own scope. Narrow does not check that id is a billing scope; callers outside
// this package go through Service.NarrowTo.
func (s Scope) Narrow(id snowflake.ID) (Scope, error) {
	if !s.resolved {
		return Scope{}, ErrEmptyScope
	}
	if id == 0 {
		return s, nil
	}
	if s.unrestricted {
		narrowed := s
		narrowed.unrestricted = false
		narrowed.id = id
		return narrowed, nil
	}
	if s.id != id {
		return Scope{}, ErrForbidden
	}
	return s, nil
}

// Contains reports whether a record tagged with scopeID is visible.
func (s Scope) Contains(scopeID snowflake.ID) bool {
	if !s.resolved {
		return false
	}
	return s.unrestricted || (scopeID != 0 && scopeID == s.id)
}

// Apply adds the scope predicate on column to stmt. An invalid scope poisons
// the statement so it can never run unfiltered.
func (s Scope) Apply(stmt *gorm.DB, column string) *gorm.DB {
	if !s.resolved {
		_ = stmt.AddError(ErrEmptyScope)
		return stmt
	}
	if s.unrestricted {
		return stmt
	}
	return stmt.Where(fmt.Sprintf("%s = ?", column), s.id)
}

func (s Scope) String() string {
	switch {
	case !s.resolved:
		return "invalid"
	case s.unrestricted:
		return "*"
	default:
		return s.id.String()
	}
}
