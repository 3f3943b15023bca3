package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/auditcontext"
	obscontext "github.com/smallbiznis/cableledger/internal/observability/context"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
)

const (
	contextPrincipalKey = "principal"
	contextScopeIDKey   = "scope_id"
	queryScopeID        = "scope_id"
)

// AuthRequired verifies the bearer token and resolves the caller's scope.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		tenantID, err := s.tenantSvc.VerifyToken(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		principal, err := s.tenantSvc.Resolve(ctx, tenantID)
		if err != nil {
			if errors.Is(err, tenantdomain.ErrNotFound) {
				err = ErrUnauthorized
			}
			AbortWithError(c, err)
			return
		}

		actorID := principal.Tenant.ID.String()
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeTenant), actorID)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeTenant), actorID)
		if scopeID := principal.Scope.ID(); scopeID != 0 {
			ctx = obscontext.WithScopeID(ctx, scopeID.String())
			c.Set(contextScopeIDKey, scopeID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (tenantdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return tenantdomain.Principal{}, false
	}
	principal, ok := value.(tenantdomain.Principal)
	return principal, ok
}

// requestScope returns the caller's scope, narrowed to the scope_id query
// parameter when one is given.
func (s *Server) requestScope(c *gin.Context) (tenantdomain.Scope, error) {
	return s.scopeWithOverride(c, c.Query(queryScopeID))
}

func (s *Server) scopeWithOverride(c *gin.Context, requested string) (tenantdomain.Scope, error) {
	principal, ok := principalFromContext(c)
	if !ok {
		return tenantdomain.Scope{}, ErrUnauthorized
	}

	requested = strings.TrimSpace(requested)
	if requested == "" {
		return principal.Scope, nil
	}
	id, err := snowflake.ParseString(requested)
	if err != nil || id == 0 {
		return tenantdomain.Scope{}, newValidationError("scope_id", "invalid_scope_id", "invalid scope_id")
	}

	scope, err := s.tenantSvc.NarrowTo(c.Request.Context(), principal.Scope, id)
	if err != nil {
		return tenantdomain.Scope{}, err
	}
	c.Set(contextScopeIDKey, id.String())
	c.Request = c.Request.WithContext(obscontext.WithScopeID(c.Request.Context(), id.String()))
	return scope, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
