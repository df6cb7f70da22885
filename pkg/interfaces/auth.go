package interfaces

// Identity is a verified user identity produced by the token verifier.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier validates a bearer credential. A verification failure at
// connect time is fatal to the connection: the caller must close it without
// emitting any event.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}
