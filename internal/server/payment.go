package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type addPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   *time.Time      `json:"payment_date"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
}

func (s *Server) AddPayment(c *gin.Context) {
	invoiceID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.AddPayment(c.Request.Context(), paymentdomain.AddPaymentRequest{
		InvoiceID:     invoiceID,
		Amount:        req.Amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		PaymentDate:   req.PaymentDate,
		Reference:     strings.TrimSpace(req.Reference),
		Notes:         strings.TrimSpace(req.Notes),
	}, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	invoiceID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ListByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDebtDashboard(c *gin.Context) {
	resp, err := s.paymentSvc.GetDebtDashboard(c.Request.Context(), strings.TrimSpace(c.Param("ref")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
