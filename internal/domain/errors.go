package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNoSigningKey      = errors.New("no signing key configured")
	ErrSigningFailed     = errors.New("signing failed")
	ErrSourceUnavailable = errors.New("price source unavailable")
	ErrStaleQuote        = errors.New("price data is stale")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
)
