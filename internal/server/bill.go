package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
)

type generateBillsRequest struct {
	ScopeID string `json:"scope_id"`
	Month   string `json:"month"`
	Year    int    `json:"year"`
}

// GenerateBills runs on-demand generation for one scope and period. The
// response reports created, skipped and failed subscribers.
func (s *Server) GenerateBills(c *gin.Context) {
	var req generateBillsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.scopeWithOverride(c, firstNonEmpty(req.ScopeID, c.Query(queryScopeID)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.billSvc.Generate(c.Request.Context(), scope, billdomain.GenerateRequest{
		Month:   strings.TrimSpace(req.Month),
		Year:    req.Year,
		Trigger: billdomain.TriggerManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetBillByID(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billSvc.GetByID(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
