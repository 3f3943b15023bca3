package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentRateLimit throttles payment submissions per collector. It fails
// open when Redis is unreachable.
func (s *Server) PaymentRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.paymentLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.paymentLimiter.AllowCollector(c.Request.Context(), principal.Tenant.ID.String())
		if err != nil {
			s.log.Warn("payment rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrTooManyRequest)
			return
		}

		c.Next()
	}
}
