package auth

import (
	"fmt"
	"net/http"
)

// AuthError is a taxonomy error with a stable code and the HTTP status it
// maps to. Two AuthErrors match under errors.Is when their codes match.
type AuthError struct {
	Code    string
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Code + ": " + e.Message }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// WithStatus returns a copy mapped to a different HTTP status.
func (e *AuthError) WithStatus(status int) *AuthError {
	cp := *e
	cp.Status = status
	return &cp
}

// WithMessage returns a copy carrying a more specific message.
func (e *AuthError) WithMessage(msg string) *AuthError {
	cp := *e
	cp.Message = msg
	return &cp
}

var (
	ErrMissingCredentials = &AuthError{"MISSING_CREDENTIALS", http.StatusUnauthorized, "Bearer token is required"}
	ErrInvalidCredentials = &AuthError{"INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid identifier or password"}
	ErrTokenExpired       = &AuthError{"TOKEN_EXPIRED", http.StatusUnauthorized, "Token has expired"}
	ErrTokenInvalid       = &AuthError{"TOKEN_INVALID", http.StatusUnauthorized, "Token is invalid"}
	ErrTokenKindMismatch  = &AuthError{"TOKEN_KIND_MISMATCH", http.StatusUnauthorized, "Token kind is not accepted here"}
	ErrTokenMismatch      = &AuthError{"TOKEN_MISMATCH", http.StatusUnauthorized, "Refresh token has been superseded"}
	ErrSessionRevoked     = &AuthError{"SESSION_REVOKED", http.StatusUnauthorized, "Session is no longer valid"}
	ErrAccountSuspended   = &AuthError{"ACCOUNT_SUSPENDED", http.StatusForbidden, "Account is suspended"}
	ErrAccountTerminated  = &AuthError{"ACCOUNT_TERMINATED", http.StatusForbidden, "Account is terminated"}
	ErrAccountUnverified  = &AuthError{"ACCOUNT_UNVERIFIED", http.StatusForbidden, "Account is not verified"}
	ErrUserNotFound       = &AuthError{"USER_NOT_FOUND", http.StatusForbidden, "User not found"}
	ErrForbidden          = &AuthError{"FORBIDDEN", http.StatusForbidden, "Not allowed to access this resource"}
	ErrNotFound           = &AuthError{"NOT_FOUND", http.StatusNotFound, "Resource not found"}
	ErrStorageUnavailable = &AuthError{"STORAGE_UNAVAILABLE", http.StatusServiceUnavailable, "Storage is unavailable"}
	ErrValidation         = &AuthError{"VALIDATION_ERROR", http.StatusBadRequest, "Invalid request"}
	ErrUserExists         = &AuthError{"USER_EXISTS", http.StatusConflict, "User with this identifier already exists"}
	ErrTooManyAttempts    = &AuthError{"TOO_MANY_ATTEMPTS", http.StatusTooManyRequests, "Too many failed attempts, try again later"}
)

// StorageError wraps a backend failure so it maps to STORAGE_UNAVAILABLE while
// keeping the cause for logs.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}

func ValidationError(msg string) error {
	return ErrValidation.WithMessage(msg)
}
