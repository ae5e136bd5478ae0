package storage

import (
	"errors"
)

// Store represents a key-value store for paste blobs. Writing a key twice
// replaces the previous value entirely.
type Store interface {
	Put(key, value []byte) (err error)

	// Get should return ErrNotFound if the key is not in the store.
	Get(key []byte) (value []byte, err error)
}

var (
	// ErrNotFound indicates a key is not in the store.
	ErrNotFound = errors.New("not found")
)

func dup(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
