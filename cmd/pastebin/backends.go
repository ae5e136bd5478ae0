package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Mokuzzai/pastebin/index"
	"github.com/Mokuzzai/pastebin/paste"
	"github.com/Mokuzzai/pastebin/storage"
	"github.com/boltdb/bolt"
	log "github.com/sirupsen/logrus"
)

const indexBucket = "index"

// backends opens the stores a strategy needs and closes them, in reverse
// order, when the server is done.
type backends struct {
	bolts   map[string]*bolt.DB
	closers []io.Closer
}

func newBackends() *backends {
	return &backends{bolts: make(map[string]*bolt.DB)}
}

// boltDB opens each database file once, since bolt holds an exclusive lock
// on it. Blobs and index may share a file under different buckets.
func (b *backends) boltDB(pathname string) (*bolt.DB, error) {
	pathname = os.ExpandEnv(pathname)
	if db, ok := b.bolts[pathname]; ok {
		return db, nil
	}
	if err := os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(pathname, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", pathname, err)
	}
	b.bolts[pathname] = db
	b.closers = append(b.closers, db)
	return db, nil
}

func (b *backends) blobs(c *config) (store storage.Store, err error) {
	switch c.Blobs.Type {
	case "memory":
		store = storage.NewInMemoryStore()
	case "disk":
		store = storage.NewDiskStore(os.ExpandEnv(c.Blobs.Path))
	case "bolt":
		db, err := b.boltDB(c.Blobs.Path)
		if err != nil {
			return nil, err
		}
		if store, err = storage.NewBoltStore(db, ""); err != nil {
			return nil, err
		}
	case "s3":
		if c.Blobs.Endpoint != "" {
			store = storage.NewS3WithEndpoint(c.Blobs.Profile, c.Blobs.Region, c.Blobs.Bucket, c.Blobs.Endpoint)
		} else {
			store = storage.NewS3(c.Blobs.Profile, c.Blobs.Region, c.Blobs.Bucket)
		}
		if c.Blobs.CachePath != "" {
			paired := storage.NewPaired(storage.NewDiskStore(os.ExpandEnv(c.Blobs.CachePath)), store)
			b.closers = append(b.closers, paired)
			store = paired
		}
	default:
		return nil, fmt.Errorf("%q: unknown blobs type", c.Blobs.Type)
	}
	algo, err := storage.ParseCompression(c.Blobs.Compression)
	if err != nil {
		return nil, err
	}
	if algo == storage.CompressionNone {
		return store, nil
	}
	return storage.NewCompressed(store, algo)
}

func (b *backends) index(c *config) (index.Index, error) {
	switch c.Index.Type {
	case "memory":
		return index.NewStoreIndex(storage.NewInMemoryStore()), nil
	case "bolt":
		db, err := b.boltDB(c.Index.Path)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewBoltStore(db, indexBucket)
		if err != nil {
			return nil, err
		}
		return index.NewStoreIndex(store), nil
	case "sqlite":
		pathname := os.ExpandEnv(c.Index.Path)
		if err := os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return nil, err
		}
		x, err := index.OpenSQLite(pathname)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, x)
		return x, nil
	case "dynamodb":
		return index.NewDynamoDB(c.Index.Profile, c.Index.Region, c.Index.Table)
	default:
		return nil, fmt.Errorf("%q: unknown index type", c.Index.Type)
	}
}

func (b *backends) strategy(c *config) (paste.Strategy, error) {
	blobs, err := b.blobs(c)
	if err != nil {
		return nil, fmt.Errorf("blobs: %w", err)
	}
	switch c.Strategy {
	case "random":
		idx, err := b.index(c)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		return paste.NewRandomStrategy(blobs, idx), nil
	case "hash":
		log.WithField("index", c.Index.Type).Debug("Content addressing needs no index")
		return paste.NewHashStrategy(blobs), nil
	default:
		return nil, fmt.Errorf("%q: unknown strategy, want random or hash", c.Strategy)
	}
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			log.WithField("err", err).Warn("Could not close backend")
		}
	}
	b.closers = nil
}
