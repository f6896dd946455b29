package service

import (
	"errors"
	"fmt"

	"templateapi/internal/repository"
)

// Every failure TemplateService returns wraps exactly one of these, so the
// HTTP layer can pick a status with errors.Is.
var (
	ErrIDRequired       = errors.New("id is required")
	ErrValidation       = errors.New("validation failed")
	ErrDecode           = errors.New("upload is not valid text")
	ErrNotFound         = errors.New("template not found")
	ErrNoSource         = errors.New("template source not available")
	ErrStoreUnavailable = errors.New("template store unavailable")
	ErrConversionFailed = errors.New("conversion failed")
)

// storeErr maps repository failures onto the service taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
