package index_test

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Mokuzzai/pastebin/index"
	"github.com/Mokuzzai/pastebin/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (index.Index, func())
	}{
		{
			name: "index over an in-memory store",
			setup: func(*testing.T) (index.Index, func()) {
				return index.NewStoreIndex(storage.NewInMemoryStore()), func() {}
			},
		},
		{
			name: "index over a bolt bucket",
			setup: func(t *testing.T) (index.Index, func()) {
				f, err := ioutil.TempFile("", "test-pastebin-index-")
				require.Nil(t, err)
				require.Nil(t, f.Close())
				db, err := bolt.Open(f.Name(), 0600, nil)
				require.Nil(t, err)
				store, err := storage.NewBoltStore(db, "index")
				require.Nil(t, err)
				return index.NewStoreIndex(store), func() {
					_ = db.Close()
					_ = os.Remove(f.Name())
				}
			},
		},
		{
			name: "index in a SQLite database",
			setup: func(t *testing.T) (index.Index, func()) {
				dir, err := ioutil.TempDir("", "test-pastebin-index-")
				require.Nil(t, err)
				x, err := index.OpenSQLite(filepath.Join(dir, "posts.db"))
				require.Nil(t, err)
				return x, func() {
					assert.Nil(t, x.Close())
					_ = os.RemoveAll(dir)
				}
			},
		},
		{
			name: "index in a DynamoDB table",
			setup: func(*testing.T) (index.Index, func()) {
				return index.NewDynamoDBWithClient(newFakeDynamoDB(), "posts"), func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, teardown := tc.setup(t)
			defer teardown()
			testIndex(t, x)
		})
	}
}

func testIndex(t *testing.T, x index.Index) {
	t.Run("what you put is what you get", func(t *testing.T) {
		id, key := uuid.NewString(), uuid.NewString()
		require.Nil(t, x.Put(id, key))
		got, err := x.Get(id)
		require.Nil(t, err)
		assert.Equal(t, key, got)
	})
	t.Run("error on unknown identifier", func(t *testing.T) {
		got, err := x.Get(uuid.NewString())
		assert.True(t, errors.Is(err, index.ErrNotFound))
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Empty(t, got)
	})
	t.Run("last writer wins on a duplicate identifier", func(t *testing.T) {
		id := uuid.NewString()
		require.Nil(t, x.Put(id, "first"))
		require.Nil(t, x.Put(id, "second"))
		got, err := x.Get(id)
		require.Nil(t, err)
		assert.Equal(t, "second", got)
	})
	t.Run("concurrent puts on distinct identifiers", func(t *testing.T) {
		ids := make([]string, 8)
		var wg sync.WaitGroup
		for i := range ids {
			ids[i] = uuid.NewString()
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				assert.Nil(t, x.Put(id, "key-"+id))
			}(ids[i])
		}
		wg.Wait()
		for _, id := range ids {
			got, err := x.Get(id)
			require.Nil(t, err)
			assert.Equal(t, "key-"+id, got)
		}
	})
}

// fakeDynamoDB implements the two calls the index makes. Calling anything
// else panics on the nil embedded interface.
type fakeDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	mu    sync.Mutex
	items map[string]map[string]*dynamodb.AttributeValue
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamoDB) PutItem(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[aws.StringValue(in.Item["id"].S)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) GetItem(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[aws.StringValue(in.Key["id"].S)]}, nil
}
