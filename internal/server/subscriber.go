package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	subscriberdomain "github.com/smallbiznis/cableledger/internal/subscriber/domain"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
)

type createSubscriberRequest struct {
	ScopeID       string          `json:"scope_id"`
	Identifier    string          `json:"identifier"`
	Name          string          `json:"name"`
	Contact       string          `json:"contact"`
	Address       string          `json:"address"`
	PackageAmount decimal.Decimal `json:"package_amount"`
}

func (s *Server) CreateSubscriber(c *gin.Context) {
	var req createSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.scopeWithOverride(c, firstNonEmpty(req.ScopeID, c.Query(queryScopeID)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriberSvc.Create(c.Request.Context(), scope, subscriberdomain.CreateSubscriberRequest{
		Identifier:    strings.TrimSpace(req.Identifier),
		Name:          strings.TrimSpace(req.Name),
		Contact:       strings.TrimSpace(req.Contact),
		Address:       strings.TrimSpace(req.Address),
		PackageAmount: req.PackageAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSubscribers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
		Search string `form:"q"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriberSvc.List(c.Request.Context(), scope, subscriberdomain.ListSubscriberRequest{
		Pagination: query.Pagination,
		Status:     strings.TrimSpace(query.Status),
		Search:     strings.TrimSpace(query.Search),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscribers, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriberByID(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriberSvc.GetByID(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateSubscriberRequest struct {
	Name          *string          `json:"name"`
	Contact       *string          `json:"contact"`
	Address       *string          `json:"address"`
	PackageAmount *decimal.Decimal `json:"package_amount"`
}

func (s *Server) UpdateSubscriber(c *gin.Context) {
	var req updateSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriberSvc.Update(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")), subscriberdomain.UpdateSubscriberRequest{
		Name:          trimStringPtr(req.Name),
		Contact:       trimStringPtr(req.Contact),
		Address:       trimStringPtr(req.Address),
		PackageAmount: req.PackageAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateSubscriber(c *gin.Context) {
	s.changeSubscriberStatus(c, s.subscriberSvc.Deactivate)
}

func (s *Server) ActivateSubscriber(c *gin.Context) {
	s.changeSubscriberStatus(c, s.subscriberSvc.Activate)
}

func (s *Server) changeSubscriberStatus(c *gin.Context, change func(ctx context.Context, scope tenantdomain.Scope, id string) (subscriberdomain.Subscriber, error)) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := change(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSubscriber(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subscriberSvc.Delete(c.Request.Context(), scope, strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListSubscriberBills(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bills, err := s.billSvc.ListForSubscriber(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bills})
}
