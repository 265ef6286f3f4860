package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	ErrUnknownStatus    = errors.New("unknown job status")
	ErrInvalidCustomID  = errors.New("invalid custom_id")
	ErrProviderDisabled = errors.New("batch API provider is not initialized (missing API key)")
)
