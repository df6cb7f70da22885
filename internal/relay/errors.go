package relay

import "errors"

var (
	// ErrRateLimited indicates the per-user message limit was hit.
	ErrRateLimited = errors.New("rate limited")
)
