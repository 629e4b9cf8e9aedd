package keystore

import (
	"errors"
)

var (
	ErrDuplicateKid   = errors.New("duplicate kid")
	ErrKeyNotFound    = errors.New("key not found")
	ErrNotFound       = errors.New("not found")
	ErrInvalidKid     = errors.New("invalid kid")
	ErrInvalidKey     = errors.New("invalid key material")
	ErrInvalidRequest = errors.New("invalid request")
)
