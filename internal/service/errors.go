package service

import "errors"

var (
	ErrNotFound        = errors.New("error not found")
	ErrStockNotActive  = errors.New("error stock is not active")
	ErrSuperseded      = errors.New("operation superseded by a newer one")
	ErrValidation      = errors.New("validation failed")
	ErrNothingToExport = errors.New("nothing to export")
)
