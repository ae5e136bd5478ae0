// Package index maps paste identifiers to the storage keys their blobs are
// kept under. Only the random addressing strategy needs it; content-hash
// identifiers are their own storage keys.
package index

import (
	"github.com/Mokuzzai/pastebin/storage"
)

// Index is a lookup structure from identifier to storage key. Entries are
// written once per upload. Implementations must tolerate concurrent puts; if
// two puts race on the same identifier, the last one wins.
type Index interface {
	Put(id, key string) error

	// Get should return ErrNotFound if no entry exists for id.
	Get(id string) (key string, err error)
}

// ErrNotFound is the same sentinel as storage.ErrNotFound so that callers
// need to check for one condition only.
var ErrNotFound = storage.ErrNotFound

// StoreIndex keeps index entries in a storage.Store, typically a BoltStore
// bucket next to the blobs.
type StoreIndex struct {
	store storage.Store
}

func NewStoreIndex(store storage.Store) *StoreIndex {
	return &StoreIndex{store: store}
}

func (x *StoreIndex) Put(id, key string) error {
	return x.store.Put([]byte(id), []byte(key))
}

func (x *StoreIndex) Get(id string) (string, error) {
	key, err := x.store.Get([]byte(id))
	if err != nil {
		return "", err
	}
	return string(key), nil
}
