package service // service error taxonomy

import "errors" // error wrapping and matching

// Kind classifies a service error for the transport layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is the result type returned by AuthService operations.  Message is
// safe to show to clients; the underlying cause is logged, never attached.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrMissingFields     = &Error{KindValidation, "all fields are required"}
	ErrPasswordMismatch  = &Error{KindValidation, "passwords do not match"}
	ErrInvalidCharacters = &Error{KindValidation, "username and password must not contain special characters"}
	ErrPasswordTooLong   = &Error{KindValidation, "password must be at most 72 characters"}
	ErrUsernameTaken     = &Error{KindConflict, "username is already taken"}

	ErrInvalidCredentials  = &Error{KindAuthentication, "invalid username or password"}
	ErrMissingRefreshToken = &Error{KindAuthentication, "missing refresh token"}
	ErrNoSuchSession       = &Error{KindAuthentication, "invalid refresh token"}
	ErrSessionExpired      = &Error{KindAuthentication, "refresh token expired, please log in again"}
	ErrUnauthorized        = &Error{KindAuthentication, "invalid or expired token"}

	ErrInternal = &Error{KindInternal, "internal server error"}
)

// KindOf reports the Kind of err, treating anything that is not a service
// Error as internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
