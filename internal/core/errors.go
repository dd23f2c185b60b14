package core

import "errors"

// Error taxonomy. AuthError-class failures are surfaced to the connection
// and should trigger a client-side token refresh; everything else is a
// rejected operation with no state mutation.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrNotIdentified = errors.New("connection not identified")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
)

func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired)
}
