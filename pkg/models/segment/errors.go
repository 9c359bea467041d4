package segment

import "errors"

var (
	ErrNotFound          = errors.New("segment not found")
	ErrInvalidSegment    = errors.New("invalid segment")
	ErrInconsistentScope = errors.New("scope mapping references missing segment")
	ErrAlreadyDedicated  = errors.New("segment already dedicated to another account")
	ErrAddressNotFound   = errors.New("address not found")
	ErrNoFreeAddress     = errors.New("segment has no free address")
	ErrNotImplemented    = errors.New("not implemented")
)
