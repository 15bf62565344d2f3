package domain

import "errors"

var (
	ErrNoOperationForNCM = errors.New("no_fiscal_operation_for_ncm")
	ErrMissingNCM        = errors.New("item_missing_ncm")
)
