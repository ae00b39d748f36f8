package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	"github.com/shopspring/decimal"
)

type calculateLogisticsRequest struct {
	IssuerRef   string `json:"issuer_ref"`
	CustomerRef string `json:"customer_ref"`
	Period      string `json:"period"`
}

func (s *Server) CalculateLogistics(c *gin.Context) {
	var req calculateLogisticsRequest
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

	records, err := s.historySvc.UsageForPeriod(c.Request.Context(), issuer.ID, customerID, strings.TrimSpace(req.Period))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ratingSvc.CalculateLogistics(c.Request.Context(), issuer.ID, records)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type calculateMixedRequest struct {
	Logistics ratingdomain.Result  `json:"logistics"`
	Extra     []invoiceLineRequest `json:"extra_lines"`
}

func (s *Server) CalculateMixedBilling(c *gin.Context) {
	var req calculateMixedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ratingSvc.CalculateMixedBilling(req.Logistics, toLineRequests(req.Extra))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRatingRanges(c *gin.Context) {
	issuerRef := strings.TrimSpace(c.Query("issuer"))
	var issuerID snowflake.ID
	if issuerRef != "" {
		issuer, err := s.directorySvc.ResolveIssuer(c.Request.Context(), issuerRef)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		issuerID = issuer.ID
	}

	kind := ratingdomain.RangeKind(strings.ToUpper(strings.TrimSpace(c.Query("kind"))))
	if kind == "" {
		kind = ratingdomain.RangeKindDistance
	}

	resp, err := s.ratingSvc.ListRanges(c.Request.Context(), issuerID, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createRangeRequest struct {
	IssuerRef    string           `json:"issuer_ref"`
	Name         string           `json:"name"`
	Kind         string           `json:"kind"`
	Min          decimal.Decimal  `json:"min"`
	Max          *decimal.Decimal `json:"max"`
	PricePerUnit decimal.Decimal  `json:"price_per_unit"`
}

func (s *Server) CreateRatingRange(c *gin.Context) {
	var req createRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	create := ratingdomain.CreateRangeRequest{
		Name:         strings.TrimSpace(req.Name),
		Kind:         ratingdomain.RangeKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Min:          req.Min,
		Max:          req.Max,
		PricePerUnit: req.PricePerUnit,
	}
	if ref := strings.TrimSpace(req.IssuerRef); ref != "" {
		issuer, err := s.directorySvc.ResolveIssuer(c.Request.Context(), ref)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		id := issuer.ID
		create.IssuerID = &id
	}

	resp, err := s.ratingSvc.CreateRange(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateRangeRequest struct {
	Name         *string          `json:"name"`
	Min          *decimal.Decimal `json:"min"`
	Max          *decimal.Decimal `json:"max"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
}

func (s *Server) UpdateRatingRange(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ratingSvc.UpdateRange(c.Request.Context(), id, ratingdomain.UpdateRangeRequest{
		Name:         req.Name,
		Min:          req.Min,
		Max:          req.Max,
		PricePerUnit: req.PricePerUnit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteRatingRange(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.ratingSvc.DeleteRange(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String()}})
}
