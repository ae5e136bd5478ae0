package paste

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Mokuzzai/pastebin/storage"
	"github.com/cespare/xxhash/v2"
)

// HashWidth is the length in characters of content-derived identifiers.
const HashWidth = 16

// HashStrategy names content by the 64-bit xxHash of its exact bytes and uses
// that name as the storage key too. Storing the same content twice is a no-op
// that returns the same identifier.
//
// The hash is not collision resistant: two different pastes with the same
// hash share an identifier, and the later upload replaces the earlier one.
type HashStrategy struct {
	blobs storage.Store
}

func NewHashStrategy(blobs storage.Store) *HashStrategy {
	return &HashStrategy{blobs: blobs}
}

// Sum returns the identifier content would be stored under.
func Sum(content []byte) Identifier {
	return Identifier(fmt.Sprintf("%016x", xxhash.Sum64(content)))
}

func (s *HashStrategy) Store(content []byte) (Identifier, error) {
	id := Sum(content)
	if err := s.blobs.Put([]byte(id), content); err != nil {
		return "", storageError("write blob", err)
	}
	return id, nil
}

func (s *HashStrategy) Load(id Identifier) ([]byte, error) {
	content, err := s.blobs.Get([]byte(id))
	if err != nil {
		return nil, storageError("read blob", err)
	}
	return content, nil
}

// ParseIdentifier accepts exactly HashWidth hex digits, in either case.
func (s *HashStrategy) ParseIdentifier(text string) (Identifier, error) {
	if len(text) != HashWidth {
		return "", fmt.Errorf("%.40q: want %d hex digits: %w", text, HashWidth, ErrMalformedIdentifier)
	}
	if _, err := hex.DecodeString(text); err != nil {
		return "", fmt.Errorf("%.40q: %w", text, ErrMalformedIdentifier)
	}
	return Identifier(strings.ToLower(text)), nil
}
