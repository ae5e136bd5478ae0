package storage_test

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math/rand"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mokuzzai/pastebin/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/boltdb/bolt"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (storage.Store, func())
	}{
		{
			name: "Store implementation backed by a BoltDB",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				f, err := ioutil.TempFile("", "test-pastebin-storage-")
				require.Nil(t, err)
				require.Nil(t, f.Close())
				db, err := bolt.Open(f.Name(), 0600, nil)
				require.Nil(t, err)
				store, err := storage.NewBoltStore(db, "blobs")
				require.Nil(t, err)
				return store, func() {
					_ = db.Close()
					_ = os.Remove(f.Name())
				}
			},
		},
		{
			name: "Store implementation backed by a map",
			setup: func(*testing.T) (s storage.Store, teardown func()) {
				return storage.NewInMemoryStore(), func() {
					// Nothing to do.
				}
			},
		},
		{
			name: "Store implementation backed by a host filesystem directory",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				dir, err := ioutil.TempDir("", "test-pastebin-storage-")
				require.Nil(t, err)
				return storage.NewDiskStore(dir), func() {
					_ = os.RemoveAll(dir)
				}
			},
		},
		{
			name: "Store implementation backed by a fake S3",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				store, ts := newFakeS3(t)
				return store, ts.Close
			},
		},
		{
			name: "Paired store backed by two in-memory stores",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				p := storage.NewPaired(
					storage.NewInMemoryStore(),
					storage.NewInMemoryStore(),
				)
				return p, func() {
					assert.Nil(t, p.Close())
				}
			},
		},
		{
			name: "zstd compressed in-memory store",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				c, err := storage.NewCompressed(storage.NewInMemoryStore(), storage.CompressionZstd)
				require.Nil(t, err)
				return c, func() {}
			},
		},
		{
			name: "lz4 compressed in-memory store",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				c, err := storage.NewCompressed(storage.NewInMemoryStore(), storage.CompressionLZ4)
				require.Nil(t, err)
				return c, func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, teardown := tc.setup(t)
			defer teardown()
			testStore(t, store)
		})
	}
}

func TestPairedPropagation(t *testing.T) {
	t.Run("puts reach the slow store", func(t *testing.T) {
		fast := storage.NewInMemoryStore()
		slow := storage.NewInMemoryStore()
		p := storage.NewPaired(fast, slow)
		require.Nil(t, p.Put([]byte("k"), []byte("v")))
		require.Nil(t, p.Close())
		value, err := slow.Get([]byte("k"))
		require.Nil(t, err)
		assert.Equal(t, []byte("v"), value)
	})
	t.Run("gets from the slow store warm the fast store", func(t *testing.T) {
		fast := storage.NewInMemoryStore()
		slow := storage.NewInMemoryStore()
		require.Nil(t, slow.Put([]byte("k"), []byte("v")))
		p := storage.NewPaired(fast, slow)
		defer p.Close()
		value, err := p.Get([]byte("k"))
		require.Nil(t, err)
		assert.Equal(t, []byte("v"), value)
		value, err = fast.Get([]byte("k"))
		require.Nil(t, err)
		assert.Equal(t, []byte("v"), value)
	})
}

func TestCompressed(t *testing.T) {
	t.Run("reads values written with another algorithm", func(t *testing.T) {
		backend := storage.NewInMemoryStore()
		zs, err := storage.NewCompressed(backend, storage.CompressionZstd)
		require.Nil(t, err)
		ls, err := storage.NewCompressed(backend, storage.CompressionLZ4)
		require.Nil(t, err)
		value := bytes.Repeat([]byte("paste "), 100)
		require.Nil(t, zs.Put([]byte("k"), value))
		got, err := ls.Get([]byte("k"))
		require.Nil(t, err)
		assert.Equal(t, value, got)
	})
	t.Run("compresses repetitive content", func(t *testing.T) {
		backend := storage.NewInMemoryStore()
		zs, err := storage.NewCompressed(backend, storage.CompressionZstd)
		require.Nil(t, err)
		value := bytes.Repeat([]byte("a"), 4096)
		require.Nil(t, zs.Put([]byte("k"), value))
		raw, err := backend.Get([]byte("k"))
		require.Nil(t, err)
		assert.Less(t, len(raw), len(value))
	})
	t.Run("rejects untagged values", func(t *testing.T) {
		backend := storage.NewInMemoryStore()
		zs, err := storage.NewCompressed(backend, storage.CompressionZstd)
		require.Nil(t, err)
		require.Nil(t, backend.Put([]byte("k"), []byte{}))
		_, err = zs.Get([]byte("k"))
		assert.True(t, errors.Is(err, storage.ErrCorrupt))
	})
	t.Run("parses configuration names", func(t *testing.T) {
		for _, name := range []string{"none", "lz4", "zstd"} {
			c, err := storage.ParseCompression(name)
			require.Nil(t, err)
			assert.Equal(t, name, c.String())
		}
		c, err := storage.ParseCompression("")
		require.Nil(t, err)
		assert.Equal(t, storage.CompressionNone, c)
		_, err = storage.ParseCompression("gzip")
		assert.NotNil(t, err)
	})
}

func TestDiskStoreLayout(t *testing.T) {
	dir, err := ioutil.TempDir("", "test-pastebin-storage-")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	store := storage.NewDiskStore(dir)
	require.Nil(t, store.Put([]byte{0xab, 0xcd}, []byte("hello")))
	content, err := ioutil.ReadFile(filepath.Join(dir, "ab", "abcd"))
	require.Nil(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func testStore(t *testing.T, store storage.Store) {
	rand.Seed(time.Now().UnixNano())
	t.Run("what you put is what you get", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, []byte("hello"))
		require.Nil(t, err)
		storedValue, err := store.Get(key)
		require.Nil(t, err)
		assert.Equal(t, []byte("hello"), storedValue)
	})
	t.Run("error on not existing key", func(t *testing.T) {
		key := randomKey()
		value, err := store.Get(key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Nil(t, value)
	})
	t.Run("can put a nil value, get non-nil empty slice", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, nil)
		require.Nil(t, err)
		value, err := store.Get(key)
		assert.Nil(t, err)
		assert.Equal(t, []byte{}, value)
	})
	t.Run("can put an empty value", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, []byte{})
		require.Nil(t, err)
		value, err := store.Get(key)
		assert.Nil(t, err)
		assert.Equal(t, []byte{}, value)
	})
	t.Run("second put overwrites the first", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, store.Put(key, []byte("first")))
		require.Nil(t, store.Put(key, []byte("second")))
		value, err := store.Get(key)
		require.Nil(t, err)
		assert.Equal(t, []byte("second"), value)
	})
	t.Run("mutating value should not affect stored pairs", func(t *testing.T) {
		key := randomKey()
		before := []byte("old value")
		if err := store.Put(key, before); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		copy(before, "new")
		after, err := store.Get(key)
		if err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		if want := []byte("old value"); !bytes.Equal(want, after) {
			t.Errorf("got %q, want %q", after, want)
		}
	})
	t.Run("mutating key should not cause a race condition", func(t *testing.T) {
		key := randomKey()
		value := []byte("value")
		if err := store.Put(key, value); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		copy(key, "other")
	})
}

func newFakeS3(t *testing.T) (*storage.S3, *httptest.Server) {
	backend := s3mem.New()
	require.Nil(t, backend.CreateBucket("pastes"))
	ts := httptest.NewServer(gofakes3.New(backend).Server())
	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials("id", "secret", ""),
		Endpoint:         aws.String(ts.URL),
		Region:           aws.String("eu-west-2"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	require.Nil(t, err)
	return storage.NewS3WithSession(sess, "pastes"), ts
}

func randomKey() []byte {
	key := make([]byte, 128)
	rand.Read(key)
	return key
}
