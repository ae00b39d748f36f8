package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

type createExpenseRequest struct {
	IssuerRef string          `json:"issuer_ref"`
	Date      *time.Time      `json:"date"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issuer, err := s.directorySvc.ResolveIssuer(c.Request.Context(), strings.TrimSpace(req.IssuerRef))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.expenseSvc.CreateExpense(c.Request.Context(), expensedomain.CreateExpenseRequest{
		IssuerID:  issuer.ID,
		Date:      req.Date,
		Category:  strings.TrimSpace(req.Category),
		Amount:    req.Amount,
		TaxAmount: req.TaxAmount,
	}, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListExpenses(c *gin.Context) {
	issuerID, ok := s.resolveIssuerID(c)
	if !ok {
		return
	}

	period := strings.TrimSpace(c.Query("period"))
	if period == "" {
		AbortWithError(c, invoicedomain.NewValidationError("period", "period query parameter is required"))
		return
	}

	resp, err := s.expenseSvc.ListByPeriod(c.Request.Context(), issuerID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
