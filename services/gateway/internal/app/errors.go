package app

import "errors"

var (
	// ErrTokenMissing indicates the request carried no bearer token.
	ErrTokenMissing = errors.New("token missing")
	// ErrInvalidToken indicates the token was rejected or resolved to no user.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAuthUnavailable indicates identity resolution could not complete.
	ErrAuthUnavailable = errors.New("authentication failed")
	// ErrInvalidCredentials indicates a password sign-in was refused.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBookNotFound indicates the book does not exist or could not be looked up.
	ErrBookNotFound = errors.New("book not found")
	// ErrForbidden indicates the caller does not own the book.
	ErrForbidden = errors.New("forbidden")
)

// statusCoder is implemented by upstream errors that carry an HTTP status,
// meaning the upstream answered and refused the request.
type statusCoder interface {
	StatusCode() int
}

// IsUpstreamRejection reports whether err is an answer from an upstream
// service rather than a failure to reach it.
func IsUpstreamRejection(err error) bool {
	var sc statusCoder
	return errors.As(err, &sc)
}
