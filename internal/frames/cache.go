package frames

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const DefaultCacheTTL = 24 * time.Hour

// Key identifies a frame by clip identity and time, never by timeline
// position, so reordering clips keeps cached thumbnails valid.
type Key struct {
	ClipID string
	Millis int64
}

func KeyFor(clipID string, second float64) Key {
	return Key{ClipID: clipID, Millis: int64(math.Round(second * 1000))}
}

func (k Key) String() string {
	return fmt.Sprintf("frame:%s:%d", k.ClipID, k.Millis)
}

// Cache stores encoded frames.
type Cache interface {
	Get(key Key) ([]byte, bool)
	Put(key Key, data []byte) error
}

// BadgerCache is a Cache on top of Badger. Entries expire after the TTL.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerCache opens a cache under dir, or an in-memory one when dir is
// empty.
func OpenBadgerCache(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open frame cache: %w", err)
	}
	return &BadgerCache{db: db, ttl: ttl, logger: logger}, nil
}

func (c *BadgerCache) Close() error { return c.db.Close() }

func (c *BadgerCache) Get(key Key) ([]byte, bool) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key.String()))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("frame cache read failed", "key", key.String(), "error", err)
		}
		return nil, false
	}
	return out, true
}

func (c *BadgerCache) Put(key Key, data []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key.String()), data).WithTTL(c.ttl))
	})
}

// DropClip removes every cached frame of a clip.
func (c *BadgerCache) DropClip(clipID string) error {
	return c.db.DropPrefix([]byte("frame:" + clipID + ":"))
}
