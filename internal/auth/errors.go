package auth

import "errors"

// Token verification errors. At connect time these are fatal to the
// connection; the client is closed without any event being emitted.
var (
	ErrTokenMissing = errors.New("bearer token missing")
	ErrTokenInvalid = errors.New("bearer token invalid or expired")
)
