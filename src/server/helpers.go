package server

import (
	"errors"
	"net/http"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch helpers.ErrorReason(err) {
	case "validation_failed":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "insufficient_funds", "insufficient_holdings", "market_closed":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	case "upstream_unavailable":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------

// errorText is the client-facing message. Internal errors are not echoed.
func errorText(err error) string {
	var (
		validation *helpers.ValidationError
		user       interface{ UserMessage() string }
	)
	switch {
	case errors.As(err, &validation):
		return "Validation failed: " + validation.Message
	case statusFor(err) == http.StatusInternalServerError:
		return "Internal server error"
	case errors.As(err, &user):
		return user.UserMessage()
	default:
		return err.Error()
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{
		"error":  errorText(err),
		"reason": helpers.ErrorReason(err),
	})
}

// -----------------------------------------------------------------------------

// orderView is the order block of a placement response.
func orderView(o *models.MOrder) gin.H {
	return gin.H{
		"OrderId":         o.ID,
		"client_order_id": o.ClientOrderID,
		"symbol":          o.Symbol,
		"quantity":        o.Quantity,
		"order_type":      o.OrderType,
		"target_price":    o.TargetPrice,
		"total_amount":    o.TotalAmount,
		"status":          o.Status,
		"Email":           o.Email,
		"HoldingId":       o.HoldingID,
		"created_at":      o.CreatedAt.Format(time.RFC3339Nano),
	}
}
