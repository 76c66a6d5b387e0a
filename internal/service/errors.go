package service

import "errors"

var (
	// ErrNotFound: the todo or task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner: the record exists but belongs to a different user.
	// Kept distinct from ErrNotFound for every operation, reads and writes
	// alike, so callers can tell 404 from 403.
	ErrNotOwner = errors.New("not authorized")

	ErrTitleLength    = errors.New("title must be between 3 and 100 characters")
	ErrTaskTextLength = errors.New("task text must be between 2 and 255 characters")
	ErrNegativeOrder  = errors.New("order cannot be negative")

	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrImageStore: the image store rejected or is unavailable for an upload
	// the caller explicitly requested. Best-effort deletes never surface it.
	ErrImageStore = errors.New("image store unavailable")
)

// IsValidation reports whether err is one of the field validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrTitleLength) ||
		errors.Is(err, ErrTaskTextLength) ||
		errors.Is(err, ErrNegativeOrder)
}
