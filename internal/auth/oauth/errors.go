package oauth

import "errors"

var (
	ErrProviderNotFound = errors.New("oauth provider not found")
	ErrInvalidRequest   = errors.New("invalid oauth request")

	// ErrStateMismatch means the callback state did not match the value
	// bound to the browser at initiation. Terminal for the attempt and
	// raised before any network call.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// Terminal provider failures. A one-time authorization code must never
	// be retried, so callers redirect to an error page instead.
	ErrProviderExchangeFailed = errors.New("provider code exchange failed")
	ErrProfileFetchFailed     = errors.New("provider profile fetch failed")
	ErrNoUsableEmail          = errors.New("provider returned no usable email")
)
