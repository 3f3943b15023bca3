package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// authorize checks the caller's role for action before the handler runs.
// The object is the action's prefix, e.g. "payment" for "payment.record".
func (s *Server) authorize(action string) gin.HandlerFunc {
	object, _, _ := strings.Cut(action, ".")
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal.Scope, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
