package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/log"
)

const BUCKET_NAME = "pages"

// entry is the stored envelope. The retrieval time lives outside the document
// metadata so expiry doesn't depend on scraper-provided fields.
type entry struct {
	RetrievedAt time.Time         `json:"retrieved_at"`
	Document    document.Document `json:"document"`
}

// PageCache is a persistent scraped-page cache backed by BoltDB, keyed by
// source URL. Entries expire after the configured TTL.
type PageCache struct {
	log zerolog.Logger
	db  *bolt.DB
	ttl time.Duration
}

// NewPageCache opens (or creates) the cache at the given path. It is up to the
// caller to close the cache when it is no longer needed.
func NewPageCache(path string, ttl time.Duration) (*PageCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BUCKET_NAME))
		return err
	})

	if err != nil {
		return nil, errors.Wrap(err, "failed to create pages bucket")
	}

	return &PageCache{
		log: log.NewLogger("cache"),
		db:  db,
		ttl: ttl,
	}, nil
}

// Get returns the cached document for the URL, if present and fresh. Stale
// entries are evicted on read.
func (c *PageCache) Get(url string) (*document.Document, bool) {
	var e entry
	found := false

	c.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket([]byte(BUCKET_NAME)).Get([]byte(url))
		if val == nil {
			return nil
		}

		if err := json.Unmarshal(val, &e); err != nil {
			c.log.Warn().Err(err).Str("url", url).Msg("Dropping undecodable cache entry")
			return nil
		}

		found = true
		return nil
	})

	if !found {
		return nil, false
	}

	if time.Since(e.RetrievedAt) > c.ttl {
		if err := c.evict(url); err != nil {
			c.log.Warn().Err(err).Str("url", url).Msg("Failed to evict stale entry")
		}
		return nil, false
	}

	return &e.Document, true
}

// Put stores the document under its source URL, replacing any previous entry.
func (c *PageCache) Put(url string, doc *document.Document) error {
	val, err := json.Marshal(entry{
		RetrievedAt: time.Now(),
		Document:    *doc,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode cache entry")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BUCKET_NAME)).Put([]byte(url), val)
	})
}

func (c *PageCache) evict(url string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BUCKET_NAME)).Delete([]byte(url))
	})
}

func (c *PageCache) Len() int {
	var count int
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BUCKET_NAME))
		count = b.Stats().KeyN
		return nil
	})

	return count
}

// Close closes the database.
func (c *PageCache) Close() error {
	return c.db.Close()
}
