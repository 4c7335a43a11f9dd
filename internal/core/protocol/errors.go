package protocol

import "errors"

// Protocol errors
var (
	ErrUnknownReducer = errors.New("unknown reducer")
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrMalformedFrame = errors.New("malformed frame")
)
