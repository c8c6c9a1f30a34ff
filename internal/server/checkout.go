package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/rangefront/armory/internal/checkout/domain"
	"github.com/rangefront/armory/internal/providers/payment"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
)

type checkoutItemRequest struct {
	ProductID   string  `json:"productId"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	IsFirearm   bool    `json:"isFirearm"`
	RequiresFFL bool    `json:"requiresFfl"`
}

type checkoutRequest struct {
	UserID         string                  `json:"userId"`
	Items          []checkoutItemRequest   `json:"items"`
	Card           payment.CardDetails     `json:"card"`
	Customer       snapshotdomain.Customer `json:"customer"`
	FFLRecipientID string                  `json:"fflRecipientId"`
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "userId must be a valid id"))
		return
	}
	if len(req.Items) == 0 {
		AbortWithError(c, newValidationError("items", "required", "items must not be empty"))
		return
	}

	var fflRecipientID *snowflake.ID
	if req.FFLRecipientID != "" {
		id, err := snowflake.ParseString(req.FFLRecipientID)
		if err != nil {
			AbortWithError(c, newValidationError("fflRecipientId", "invalid_ffl_recipient_id", "fflRecipientId must be a valid id"))
			return
		}
		fflRecipientID = &id
	}

	items := make([]checkoutdomain.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := snowflake.ParseString(item.ProductID)
		if err != nil {
			AbortWithError(c, newValidationError("items.productId", "invalid_product_id", "productId must be a valid id"))
			return
		}
		items = append(items, checkoutdomain.CheckoutItem{
			ProductID:   productID,
			SKU:         item.SKU,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			IsFirearm:   item.IsFirearm,
			RequiresFFL: item.RequiresFFL,
		})
	}

	result, err := s.checkoutSvc.Checkout(c.Request.Context(), checkoutdomain.CheckoutRequest{
		UserID:         userID,
		Items:          items,
		Card:           req.Card,
		Customer:       req.Customer,
		FFLRecipientID: fflRecipientID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
