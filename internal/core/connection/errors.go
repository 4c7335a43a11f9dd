package connection

import "errors"

// Connection errors
var (
	ErrNoAuthorityReachable = errors.New("no authority endpoint reachable")
	ErrEndpointUnreachable  = errors.New("endpoint unreachable")
	ErrReconnectExhausted   = errors.New("reconnect attempts exhausted")
	ErrManagerClosed        = errors.New("connection manager is closed")
	ErrFallbackMode         = errors.New("manager is in fallback mode")
	ErrAlreadyConnected     = errors.New("manager is already connected")
)
