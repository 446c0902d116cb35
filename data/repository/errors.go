package repository

import "errors"

// Error kinds produced at the record store boundary. Everything not
// matched by IsPermanent is treated as transient and may be retried.
var (
	ErrNotFound            = errors.New("error not found")
	ErrAlreadyExists       = errors.New("error already exists")
	ErrAuthorizationDenied = errors.New("error authorization denied")
)

// IsPermanent reports whether err must never be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAuthorizationDenied)
}
