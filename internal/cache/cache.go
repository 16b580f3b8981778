// Package cache persists hash reputation results between runs so that a
// hash is looked up remotely at most once per TTL.
package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"

	"fim-go/internal/model"
)

// gcDiscardRatio is the value log rewrite threshold used after a purge.
const gcDiscardRatio = 0.5

// Cache maps content hashes to reputation results. It is safe for
// concurrent use.
type Cache struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens or creates the cache directory at path. logger may be nil.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger.Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache at %s: %w", path, err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Lookup returns the entry stored for hash, or nil if there is none. The
// entry's age is not checked; stale entries are removed by PurgeStale.
func (c *Cache) Lookup(hash model.Hash) (*model.CacheEntry, error) {
	var entry *model.CacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hash[:])
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		e, err := model.UnmarshalCacheEntry(raw)
		if err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", hash, err)
	}
	return entry, nil
}

// Insert stores entry for hash, replacing any previous one.
func (c *Cache) Insert(hash model.Hash, entry model.CacheEntry) error {
	raw, err := entry.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hash[:], raw)
	})
	if err != nil {
		return fmt.Errorf("storing %s: %w", hash, err)
	}
	return nil
}

// PurgeStale deletes every entry that has outlived its TTL at now and then
// reclaims value log space. Entries that cannot be decoded are deleted too.
// Returns the number of entries removed.
func (c *Cache) PurgeStale(now time.Time) (int, error) {
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := model.UnmarshalCacheEntry(raw)
			if err != nil || e.Expired(now) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning cache: %w", err)
	}

	if err := c.deleteKeys(stale); err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		c.collectGarbage()
	}
	c.logger.Debug("cache purged", zap.Int("removed", len(stale)))
	return len(stale), nil
}

// deleteKeys removes keys in as few transactions as badger allows,
// committing and starting over whenever a transaction fills up.
func (c *Cache) deleteKeys(keys [][]byte) error {
	txn := c.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, k := range keys {
		err := txn.Delete(k)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("committing purge: %w", err)
			}
			txn = c.db.NewTransaction(true)
			err = txn.Delete(k)
		}
		if err != nil {
			return fmt.Errorf("deleting cache entry: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing purge: %w", err)
	}
	return nil
}

func (c *Cache) collectGarbage() {
	for {
		if err := c.db.RunValueLogGC(gcDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				c.logger.Warn("value log gc", zap.Error(err))
			}
			return
		}
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's own logging into zap. Badger reports routine
// compaction progress at info level, which is debug noise for us.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }
