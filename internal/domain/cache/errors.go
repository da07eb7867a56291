package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrNilCompute = errors.New("compute function is nil")
	ErrNilStore   = errors.New("store is nil")
)
