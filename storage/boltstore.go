package storage

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// BoltStore is an implementation of Store whose backend is one bucket of a
// Bolt database. Several BoltStores can share a database, e.g., blobs and the
// identifier index of the random addressing strategy.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var (
	// DefaultBucket is used when NewBoltStore is given an empty bucket name.
	DefaultBucket = []byte("pastes")
)

func NewBoltStore(db *bolt.DB, bucket string) (*BoltStore, error) {
	name := DefaultBucket
	if bucket != "" {
		name = []byte(bucket)
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		if err != nil {
			return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, bucket: name}, nil
}

func (s *BoltStore) Put(key []byte, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.bucket).Put(key, value); err != nil {
			return fmt.Errorf("could not put %.40q with %.40q: %w", key, value, err)
		}
		return nil
	})
}

func (s *BoltStore) Get(key []byte) (value []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(key)
		if v == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		// Bolt values are only valid for the life of the transaction.
		value = dup(v)
		return nil
	})
	return value, err
}
