package postback

import "errors"

var (
	ErrMissingAmount       = errors.New("missing amount")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSignatureMissing    = errors.New("signature missing")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrSecretNotConfigured = errors.New("provider secret not configured")
)
