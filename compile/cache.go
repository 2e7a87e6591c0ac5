package compile

import (
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"
)

// Cache stores compiled artifacts keyed by a hash of the inputs, so a puzzle
// is only pushed through conjure and savilerow once per (model, param,
// compiler version) triple.
type Cache struct {
	db *badger.DB
}

// OpenCache opens the cache under dir. An empty dir opens an in-memory cache,
// used by tests; Compile does not open a cache at all when its CacheDir is
// empty.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening compile cache")
	}
	return &Cache{db: db}, nil
}

// Close releases the cache.
func (c *Cache) Close() error { return c.db.Close() }

// cacheKey hashes the compile inputs.
func cacheKey(model, param []byte, version string) ([]byte, error) {
	h, err := hashstructure.Hash(struct {
		Model   []byte
		Param   []byte
		Version string
	}{model, param, version}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "hashing cache key")
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, h)
	return key, nil
}

// Get returns the artifact stored under key, if any.
func (c *Cache) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading compile cache")
	}
	return val, true, nil
}

// Put stores an artifact under key.
func (c *Cache) Put(key, val []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	return errors.Wrap(err, "writing compile cache")
}
