package paste

import (
	"fmt"

	"github.com/Mokuzzai/pastebin/index"
	"github.com/Mokuzzai/pastebin/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RandomStrategy names every upload with a random UUID, independent of the
// content, and stores the bytes under a second random UUID recorded in an
// index. The same content uploaded twice yields two identifiers.
type RandomStrategy struct {
	blobs storage.Store
	index index.Index
}

func NewRandomStrategy(blobs storage.Store, idx index.Index) *RandomStrategy {
	return &RandomStrategy{
		blobs: blobs,
		index: idx,
	}
}

func (s *RandomStrategy) Store(content []byte) (Identifier, error) {
	id := uuid.New().String()
	key := uuid.New().String()
	// Blob first, so the index never points at missing content.
	if err := s.blobs.Put([]byte(key), content); err != nil {
		return "", storageError("write blob", err)
	}
	if err := s.index.Put(id, key); err != nil {
		return "", storageError("write index", err)
	}
	log.WithFields(log.Fields{
		"id":  id,
		"key": key,
	}).Debug("Indexed storage key")
	return Identifier(id), nil
}

func (s *RandomStrategy) Load(id Identifier) ([]byte, error) {
	key, err := s.index.Get(string(id))
	if err != nil {
		return nil, storageError("read index", err)
	}
	content, err := s.blobs.Get([]byte(key))
	if err != nil {
		return nil, storageError("read blob", err)
	}
	return content, nil
}

// ParseIdentifier accepts any textual UUID form and returns it in lowercase
// hyphenated form, which is how identifiers are handed out.
func (s *RandomStrategy) ParseIdentifier(text string) (Identifier, error) {
	u, err := uuid.Parse(text)
	if err != nil {
		return "", fmt.Errorf("%.40q: %v: %w", text, err, ErrMalformedIdentifier)
	}
	return Identifier(u.String()), nil
}
