package errors

import "errors"

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired session token")
)

// Server/transport errors.
var (
	ErrAPIRequest    = errors.New("API request failed")
	ErrAPIResponse   = errors.New("unexpected API response")
	ErrChannelClosed = errors.New("notification channel closed")
)

// Task errors.
var (
	ErrRetriesExhausted = errors.New("upload retries exhausted")
)
