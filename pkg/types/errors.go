package types

import "errors"

// Domain error taxonomy. Once a connection is established these are recovered
// locally and reported to the offending connection only; they never close the
// connection and are never broadcast to a room.
var (
	ErrAccessDenied     = errors.New("not a member of this workspace or channel")
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("invalid payload")
)
