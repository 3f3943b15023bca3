package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/cableledger/internal/payment/domain"
	"github.com/smallbiznis/cableledger/pkg/db/pagination"
)

type recordPaymentRequest struct {
	ScopeID        string          `json:"scope_id"`
	SubscriberID   string          `json:"subscriber_id"`
	BillID         string          `json:"bill_id"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaymentMode    string          `json:"payment_mode"`
	TransactionRef string          `json:"transaction_ref"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.scopeWithOverride(c, firstNonEmpty(req.ScopeID, c.Query(queryScopeID)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(), scope, paymentdomain.RecordPaymentRequest{
		SubscriberID:   strings.TrimSpace(req.SubscriberID),
		BillID:         strings.TrimSpace(req.BillID),
		Amount:         req.PaidAmount,
		PaymentMode:    strings.TrimSpace(req.PaymentMode),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		SubscriberID string `form:"subscriber_id"`
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

	resp, err := s.paymentSvc.List(c.Request.Context(), scope, paymentdomain.ListPaymentRequest{
		Pagination:   query.Pagination,
		SubscriberID: strings.TrimSpace(query.SubscriberID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.GetByID(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	pdf, err := s.paymentSvc.Receipt(c.Request.Context(), scope, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

type updateDeliveryRequest struct {
	ReceiptSent  *bool `json:"receipt_sent"`
	WhatsappSent *bool `json:"whatsapp_sent"`
	SMSSent      *bool `json:"sms_sent"`
}

func (s *Server) UpdatePaymentDelivery(c *gin.Context) {
	var req updateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope, err := s.requestScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.UpdateDelivery(c.Request.Context(), scope, strings.TrimSpace(c.Param("id")), paymentdomain.DeliveryUpdate{
		ReceiptSent:  req.ReceiptSent,
		WhatsappSent: req.WhatsappSent,
		SMSSent:      req.SMSSent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
