package sim

import "errors"

// Engine errors
var (
	ErrInvalidRole = errors.New("invalid role, must be 'user' or 'admin'")
)
