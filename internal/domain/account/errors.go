package account

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	// ErrForbiddenRole is returned when self-registration asks for a role other than patient.
	ErrForbiddenRole = errors.New("self-registration is limited to patient accounts")
	ErrConflict      = errors.New("an account with this email already exists")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTransientStorage   = errors.New("storage unavailable")
	ErrNotFound           = errors.New("account not found")
	ErrAccountLocked      = errors.New("too many failed login attempts, try again later")
)
