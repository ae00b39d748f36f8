package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

type invoiceLineRequest struct {
	Description  string           `json:"description"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	DiscountRate *decimal.Decimal `json:"discount_rate"`
	TaxRate      decimal.Decimal  `json:"tax_rate"`
	RangeName    string           `json:"range_name"`
}

type createDraftRequest struct {
	IssuerRef    string               `json:"issuer_ref"`
	CustomerRef  string               `json:"customer_ref"`
	CustomerType string               `json:"customer_type"`
	Lines        []invoiceLineRequest `json:"lines"`
	IssueDate    *time.Time           `json:"issue_date"`
	DueDate      *time.Time           `json:"due_date"`
}

func (s *Server) CreateDraftInvoice(c *gin.Context) {
	var req createDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id, err := s.invoiceSvc.CreateDraft(c.Request.Context(), invoicedomain.CreateDraftRequest{
		IssuerRef:    strings.TrimSpace(req.IssuerRef),
		CustomerRef:  strings.TrimSpace(req.CustomerRef),
		CustomerType: directorydomain.CustomerType(strings.ToUpper(strings.TrimSpace(req.CustomerType))),
		Lines:        toLineRequests(req.Lines),
		IssueDate:    req.IssueDate,
		DueDate:      req.DueDate,
	}, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String()}})
}

type updateDraftRequest struct {
	Lines   []invoiceLineRequest `json:"lines"`
	DueDate *time.Time           `json:"due_date"`
}

func (s *Server) UpdateDraftInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := invoicedomain.UpdateDraftRequest{DueDate: req.DueDate}
	if req.Lines != nil {
		update.Lines = toLineRequests(req.Lines)
	}
	if err := s.invoiceSvc.UpdateDraft(c.Request.Context(), id, update); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String()}})
}

func (s *Server) DeleteDraftInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invoiceSvc.DeleteDraft(c.Request.Context(), id, actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String()}})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.IssueInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type rectifyRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RectifyInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rectifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.RectifyInvoice(c.Request.Context(), id, strings.TrimSpace(req.Reason), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	issuerRef := strings.TrimSpace(c.Query("issuer"))
	if issuerRef == "" {
		AbortWithError(c, invoicedomain.NewValidationError("issuer", "issuer query parameter is required"))
		return
	}

	resp, err := s.invoiceSvc.ListByIssuer(c.Request.Context(), issuerRef)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerInvoices(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.ListByCustomer(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomerStats(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.GetCustomerStats(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcileInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.historySvc.ReconcileOrderCount(c.Request.Context(), &invoice)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func toLineRequests(lines []invoiceLineRequest) []invoicedomain.LineRequest {
	out := make([]invoicedomain.LineRequest, 0, len(lines))
	for _, line := range lines {
		out = append(out, invoicedomain.LineRequest{
			Description:  strings.TrimSpace(line.Description),
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			DiscountRate: line.DiscountRate,
			TaxRate:      line.TaxRate,
			RangeName:    strings.TrimSpace(line.RangeName),
		})
	}
	return out
}
