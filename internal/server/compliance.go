package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
)

func (s *Server) GetComplianceConfig(c *gin.Context) {
	cfg, err := s.complianceSvc.ActiveConfig(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) UpdateComplianceConfig(c *gin.Context) {
	var req compliancedomain.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	req.UpdatedBy = adminID(c)

	cfg, err := s.complianceSvc.UpdateConfig(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}
