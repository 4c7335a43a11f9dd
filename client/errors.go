package client

import "errors"

// Client-specific errors
var (
	ErrClientClosed  = errors.New("client is closed")
	ErrNotConnected  = errors.New("client is not connected")
	ErrNotJoined     = errors.New("session not joined")
	ErrInvalidRole   = errors.New("invalid role, must be 'user' or 'admin'")
	ErrTooFewOptions = errors.New("a poll needs at least two non-empty options")
)
