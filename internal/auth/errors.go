package auth

import (
	"errors"
	"fmt"
)

// ErrTokenExpired is returned when the login endpoint hands out a token that is already expired.
var ErrTokenExpired = errors.New("auth: token already expired")

// AuthError reports a failed login or an unusable token artifact.
// Callers branch on it with errors.As; Err holds the cause.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether any error in err's chain is an *AuthError.
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}
