package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	holdsdomain "github.com/rangefront/armory/internal/holds/domain"
)

type attachFFLRequest struct {
	DealerID string `json:"dealerId"`
	Verify   bool   `json:"verify"`
}

func (s *Server) AttachFFL(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req attachFFLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	dealerID, err := snowflake.ParseString(req.DealerID)
	if err != nil {
		AbortWithError(c, newValidationError("dealerId", "invalid_dealer_id", "dealerId must be a valid id"))
		return
	}

	result, err := s.holdsSvc.AttachAndVerifyFFL(c.Request.Context(), holdsdomain.AttachFFLRequest{
		OrderID:  orderID,
		DealerID: dealerID,
		AdminID:  adminID(c),
		Verify:   req.Verify,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type overrideHoldRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) OverrideHold(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req overrideHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	result, err := s.holdsSvc.OverrideHold(c.Request.Context(), holdsdomain.OverrideHoldRequest{
		OrderID: orderID,
		AdminID: adminID(c),
		Reason:  req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func adminID(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader("X-Admin-Id"))
	if id == "" {
		id = "unknown"
	}
	return id
}
