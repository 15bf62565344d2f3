package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	businessdomain "github.com/notazul/notazul/internal/business/domain"
	fiscalruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		errorType string
	}{
		{ErrInvalidRequest, http.StatusBadRequest, "validation_error"},
		{invoicedomain.ErrJustificationTooShort, http.StatusBadRequest, "validation_error"},
		{fiscalruledomain.ErrNoOperationForNCM, http.StatusBadRequest, "validation_error"},
		{businessdomain.ErrInvalidCNPJ, http.StatusBadRequest, "validation_error"},

		{invoicedomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{orderdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},

		{invoicedomain.ErrAlreadyExists, http.StatusConflict, "conflict"},
		{invoicedomain.ErrNotTransmittable, http.StatusConflict, "conflict"},
		{orderdomain.ErrInvalidTransition, http.StatusConflict, "conflict"},

		{invoicedomain.ErrMissingCertificate, http.StatusUnprocessableEntity, "missing_certificate"},

		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
		assert.Equal(t, tc.errorType, payload.Type, "error %v", tc.err)
	}
}

func TestMapErrorUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: status AUTORIZADA", invoicedomain.ErrNotTransmittable)
	status, payload := mapError(wrapped)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	_, payload := mapError(errors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", payload.Message)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, errorType := classifyErrorForLog(invoicedomain.ErrNotFound)
	assert.Equal(t, "domain", kind)
	assert.Equal(t, "not_found", errorType)

	kind, errorType = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal", kind)
	assert.Equal(t, "internal_error", errorType)
}
