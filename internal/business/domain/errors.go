package domain

import "errors"

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidCNPJ        = errors.New("invalid_cnpj")
	ErrInvalidState       = errors.New("invalid_state")
	ErrInvalidTaxRegime   = errors.New("invalid_tax_regime")
	ErrInvalidEnvironment = errors.New("invalid_environment")
	ErrNotFound           = errors.New("business_not_found")
	ErrUnknownModel       = errors.New("unknown_document_model")
)
