package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) resolveIssuerID(c *gin.Context) (snowflake.ID, bool) {
	issuer, err := s.directorySvc.ResolveIssuer(c.Request.Context(), strings.TrimSpace(c.Param("ref")))
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	return issuer.ID, true
}

func (s *Server) GetVaultEntry(c *gin.Context) {
	issuerID, ok := s.resolveIssuerID(c)
	if !ok {
		return
	}

	resp, err := s.taxVaultSvc.GetEntry(c.Request.Context(), issuerID, c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExecuteMonthlyClose(c *gin.Context) {
	issuerID, ok := s.resolveIssuerID(c)
	if !ok {
		return
	}

	resp, err := s.taxVaultSvc.ExecuteMonthlyClose(c.Request.Context(), issuerID, c.Param("period"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecalculateMonth(c *gin.Context) {
	issuerID, ok := s.resolveIssuerID(c)
	if !ok {
		return
	}

	resp, err := s.taxVaultSvc.RecalculateMonth(c.Request.Context(), issuerID, c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type unlockRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RequestUnlock(c *gin.Context) {
	issuerID, ok := s.resolveIssuerID(c)
	if !ok {
		return
	}

	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.taxVaultSvc.RequestUnlock(c.Request.Context(), issuerID, c.Param("period"), actorFrom(c), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "requested"}})
}
