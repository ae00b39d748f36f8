package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	historydomain "github.com/repartia/treasury/internal/history/domain"
	"github.com/shopspring/decimal"
)

type addDeliveryRequest struct {
	IssuerRef   string           `json:"issuer_ref"`
	CustomerRef string           `json:"customer_ref"`
	Date        *time.Time       `json:"date"`
	Distance    *decimal.Decimal `json:"distance"`
	Duration    *decimal.Decimal `json:"duration_minutes"`
	OrderRef    string           `json:"order_ref"`
}

func (s *Server) AddDeliveryRecord(c *gin.Context) {
	var req addDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issuer, err := s.directorySvc.ResolveIssuer(c.Request.Context(), strings.TrimSpace(req.IssuerRef))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	customerID, err := parseID(req.CustomerRef)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record := historydomain.AddRecordRequest{
		IssuerID:   issuer.ID,
		CustomerID: customerID,
		Distance:   req.Distance,
		Duration:   req.Duration,
		OrderRef:   strings.TrimSpace(req.OrderRef),
	}
	if req.Date != nil {
		record.Date = *req.Date
	}

	resp, err := s.historySvc.AddRecord(c.Request.Context(), record)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
