package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
)

type createIssuerRequest struct {
	Name       string `json:"name"`
	LegacyName string `json:"legacy_name"`
	TaxID      string `json:"tax_id"`
	Address    string `json:"address"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

func (s *Server) CreateIssuer(c *gin.Context) {
	var req createIssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.directorySvc.CreateIssuer(c.Request.Context(), directorydomain.CreateIssuerRequest{
		Name:       strings.TrimSpace(req.Name),
		LegacyName: strings.TrimSpace(req.LegacyName),
		TaxID:      strings.TrimSpace(req.TaxID),
		Address:    strings.TrimSpace(req.Address),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetIssuer(c *gin.Context) {
	resp, err := s.directorySvc.ResolveIssuer(c.Request.Context(), strings.TrimSpace(c.Param("ref")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createCustomerRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.directorySvc.CreateCustomer(c.Request.Context(), directorydomain.CreateCustomerRequest{
		Type:    directorydomain.CustomerType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Name:    strings.TrimSpace(req.Name),
		TaxID:   strings.TrimSpace(req.TaxID),
		Address: strings.TrimSpace(req.Address),
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomer(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directorySvc.GetCustomer(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
