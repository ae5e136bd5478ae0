package storage

import (
	"crypto/sha512"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// DiskStore implements Store on a host directory. Each value lives in its own
// file, fanned out into subdirectories by the first byte of the key. Writes go
// through a temporary file that is renamed in place, so readers never observe
// a partially written paste.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Put(key, value []byte) (err error) {
	valpath := s.pathFor(key)
	if err = os.MkdirAll(filepath.Dir(valpath), 0700); err != nil {
		return fmt.Errorf("could not make dir for %q: %w", valpath, err)
	}
	if err = renameio.WriteFile(valpath, value, 0600); err != nil {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	return nil
}

func (s *DiskStore) Get(key []byte) (value []byte, err error) {
	valpath := s.pathFor(key)
	value, err = ioutil.ReadFile(valpath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%x: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %q: %w", valpath, err)
	}
	return value, nil
}

func (s *DiskStore) pathFor(key []byte) string {
	// Prevent ENAMETOOLONG, while retaining low probability of clashes.
	if len(key) > sha512.Size {
		hash := sha512.Sum512(key)
		key = hash[:]
	}
	hex := fmt.Sprintf("%02x", key)
	if len(hex) < 2 {
		hex = "00" + hex
	}
	return filepath.Join(s.dir, hex[:2], hex)
}
