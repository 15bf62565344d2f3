package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	fiscalruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, invoicedomain.ErrMissingCertificate):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "missing_certificate",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrJustificationTooShort),
		errors.Is(err, invoicedomain.ErrOrderMissingModel),
		errors.Is(err, invoicedomain.ErrOrderWithoutItems),
		errors.Is(err, fiscalruledomain.ErrNoOperationForNCM),
		errors.Is(err, fiscalruledomain.ErrMissingNCM),
		errors.Is(err, businessdomain.ErrInvalidName),
		errors.Is(err, businessdomain.ErrInvalidCNPJ),
		errors.Is(err, businessdomain.ErrInvalidState),
		errors.Is(err, businessdomain.ErrInvalidTaxRegime),
		errors.Is(err, businessdomain.ErrInvalidEnvironment),
		errors.Is(err, businessdomain.ErrUnknownModel):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, businessdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrAlreadyExists),
		errors.Is(err, invoicedomain.ErrNotEditable),
		errors.Is(err, invoicedomain.ErrNotCancelable),
		errors.Is(err, invoicedomain.ErrNotTransmittable),
		errors.Is(err, invoicedomain.ErrOrderNotBilled),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, orderdomain.ErrNoItems):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger with a stable error
// type for 4xx/5xx responses.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= 500 {
		return "internal", payload.Type
	}
	return "domain", payload.Type
}
