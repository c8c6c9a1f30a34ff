package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	"github.com/rangefront/armory/pkg/db/pagination"
)

func parseOrderID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_order_id", "order id must be a valid id"))
		return 0, false
	}
	return id, true
}

type listOrdersQuery struct {
	UserID string `form:"user_id"`
	Status string `form:"status"`
	pagination.Pagination
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid query parameters"))
		return
	}
	if query.PageSize <= 0 {
		query.PageSize = 25
	}

	filter := orderdomain.ListOrderFilter{
		Status: orderdomain.OrderStatus(query.Status),
	}
	if query.UserID != "" {
		userID, err := snowflake.ParseString(query.UserID)
		if err != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user_id must be a valid id"))
			return
		}
		filter.UserID = userID
	}

	orders, err := s.orderRepo.List(c.Request.Context(), s.db, filter, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(orders, query.PageSize, func(o *orderdomain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        o.ID.String(),
			CreatedAt: o.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(orders) > query.PageSize {
		orders = orders[:query.PageSize]
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":    orders,
		"page_info": pageInfo,
	})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := s.orderRepo.FindByID(c.Request.Context(), s.db, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order == nil {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	lines, err := s.orderRepo.ListLines(c.Request.Context(), s.db, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"lines": lines,
	})
}

type writeSnapshotRequest struct {
	Items            []snapshotdomain.SnapshotItem `json:"items"`
	ShippingOutcomes []string                      `json:"shippingOutcomes"`
	Customer         snapshotdomain.Customer       `json:"customer"`
	TransactionID    string                        `json:"transactionId"`
	Status           string                        `json:"status"`
}

func (s *Server) WriteOrderSnapshot(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req writeSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	minted, err := s.snapshotSvc.WriteSnapshot(c.Request.Context(), snapshotdomain.WriteSnapshotRequest{
		OrderID:          orderID,
		Items:            req.Items,
		ShippingOutcomes: req.ShippingOutcomes,
		Customer:         req.Customer,
		TransactionID:    req.TransactionID,
		Status:           req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":     orderID.String(),
		"orderNumber": minted.Main,
		"minted":      minted,
	})
}

func (s *Server) GetOrderSummary(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	summary, err := s.snapshotSvc.ReadSummary(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
