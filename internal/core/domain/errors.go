package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDuplicateDocument = errors.New("duplicate document")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrTenantRequired marks a retrieval attempted without a tenant id.
	// This is a programming error and is rejected before any query executes.
	ErrTenantRequired = errors.New("tenant id required")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
