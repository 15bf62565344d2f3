package domain

import "errors"

var (
	ErrNotFound              = errors.New("invoice_not_found")
	ErrOrderNotBilled        = errors.New("order_not_billed")
	ErrOrderMissingModel     = errors.New("order_missing_document_model")
	ErrOrderWithoutItems     = errors.New("order_without_items")
	ErrAlreadyExists         = errors.New("active_invoice_already_exists")
	ErrNotEditable           = errors.New("invoice_not_editable")
	ErrNotCancelable         = errors.New("invoice_not_cancelable")
	ErrJustificationTooShort = errors.New("justification_too_short")
	ErrMissingCertificate    = errors.New("business_missing_certificate")
	ErrNotTransmittable      = errors.New("invoice_not_transmittable")
)
