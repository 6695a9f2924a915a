package toolhost

import "errors"

// Sentinel errors returned by Host operations.
var (
	ErrClosed = errors.New("toolhost: host closed")
)
