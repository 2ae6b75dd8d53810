package api

import (
	"errors"
	"net/http"

	"storefront-service/internal/identity"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a domain error onto an HTTP status and a stable error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrTokenRevoked):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, models.ErrEmptyCart):
		return http.StatusConflict, "empty_cart"
	case errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, models.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, models.ErrQuantityLimitExceeded):
		return http.StatusUnprocessableEntity, "quantity_limit_exceeded"
	case errors.Is(err, models.ErrValidationFailed):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, models.ErrRoleForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrTxAborted):
		return http.StatusServiceUnavailable, "transaction_aborted"
	case errors.Is(err, models.ErrIllegalInventoryAccess):
		return http.StatusInternalServerError, "illegal_inventory_access"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes err as a JSON error body
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)

	body := gin.H{"error": code}
	if status < http.StatusInternalServerError {
		body["details"] = err.Error()
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
		body["rule"] = verr.Rule
	}

	var serr *models.InsufficientStockError
	if errors.As(err, &serr) {
		body["productId"] = serr.ProductID
		body["available"] = serr.Available
		body["requested"] = serr.Requested
	}

	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a body that could not be bound
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"details": err.Error(),
	})
}
