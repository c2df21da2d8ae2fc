package flow

import "errors"

// ErrSessionNotFound is returned by admin operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")
