// Package paste decides how submitted content maps to a client-visible
// identifier and to the storage key its bytes are kept under.
//
// Two strategies are provided. RandomStrategy names every upload with a fresh
// UUID and records, in an index, where the bytes were put under a second,
// independent UUID. HashStrategy names content by a 64-bit hash of its bytes
// and stores it under that same name, so no index is needed. Either is chosen
// once at startup; the connection handler only sees the Strategy interface.
package paste

import (
	"errors"
	"fmt"

	"github.com/Mokuzzai/pastebin/storage"
)

// Identifier names one stored paste from the client's perspective.
type Identifier string

// Strategy stores and loads pastes.
type Strategy interface {
	// Store persists content and returns the identifier to retrieve it by.
	Store(content []byte) (Identifier, error)

	// Load returns the content previously stored under id. It returns an
	// error wrapping ErrNotFound if id names nothing.
	Load(id Identifier) ([]byte, error)

	// ParseIdentifier validates the textual form of an identifier, as found
	// in a request target, and returns its canonical form.
	ParseIdentifier(s string) (Identifier, error)
}

var (
	// ErrNotFound indicates an identifier does not resolve to any paste.
	ErrNotFound = storage.ErrNotFound

	// ErrMalformedIdentifier indicates text that cannot be an identifier
	// under the active strategy.
	ErrMalformedIdentifier = errors.New("malformed identifier")
)

// StorageError reports a failure of the underlying blob store or index,
// other than a missing entry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageError leaves not-found conditions unwrapped, so callers can tell
// them apart from real failures with errors.As.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
