package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPrompt   = errors.New("invalid prompt")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrJobActive       = errors.New("generation already in progress")
	ErrProviderFailure = errors.New("provider failure")
	ErrUnsalvageable   = errors.New("model output unsalvageable")
	ErrEmptyOutput     = errors.New("no files generated")
)
