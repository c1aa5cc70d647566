// Package cache keeps the events of already processed runs in a badger
// database so that unchanged runs are not loaded and segmented again.
package cache

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/silolab/avalanche/internal/avalanche"
)

// RunCache maps a run fingerprint to its detected events
type RunCache struct {
	db *badger.DB
}

// badgerLogger adapts a zap logger to badger.Logger
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// Open opens or creates the cache in dir. A nil logger silences badger.
func Open(dir string, logger *zap.SugaredLogger) (*RunCache, error) {
	opts := badger.DefaultOptions(dir).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open run cache %s: %w", dir, err)
	}
	return &RunCache{db: db}, nil
}

// Key fingerprints a run file together with everything that changes its
// events: size, modification time, input source and segmentation options.
func Key(path string, info os.FileInfo, source string, opts avalanche.Options) []byte {
	return []byte(strings.Join([]string{
		"run",
		path,
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10),
		source,
		strconv.FormatFloat(opts.GapThreshold, 'g', -1, 64),
		strconv.Itoa(opts.MinSize),
		strconv.FormatBool(opts.CloseFinalBlock),
	}, "\x00"))
}

// Get returns the cached events of key. ok is false on a miss.
func (c *RunCache) Get(key []byte) (events []avalanche.Event, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ok = true
			return msgpack.Unmarshal(val, &events)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read run cache: %w", err)
	}
	if ok && events == nil {
		events = []avalanche.Event{}
	}
	return events, ok, nil
}

// Put stores the events of key, replacing any previous value
func (c *RunCache) Put(key []byte, events []avalanche.Event) error {
	val, err := msgpack.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Len counts the cached runs
func (c *RunCache) Len() (int, error) {
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

// Close closes the underlying database
func (c *RunCache) Close() error {
	return c.db.Close()
}
