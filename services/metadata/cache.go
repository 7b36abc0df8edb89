package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketResponses = []byte("tmdb_responses")

// ResponseCache stores raw TMDB response bodies in BoltDB with a TTL.
// A nil *ResponseCache is valid and never hits.
type ResponseCache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

type cachedResponse struct {
	StoredAt time.Time       `json:"storedAt"`
	Body     json.RawMessage `json:"body"`
}

// OpenResponseCache opens (or creates) the cache database under dir. It returns
// nil without error when caching is disabled by an empty dir or a zero TTL.
func OpenResponseCache(dir string, ttlHours int) (*ResponseCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" || ttlHours <= 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "tmdb.db"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ResponseCache{
		db:  db,
		ttl: time.Duration(ttlHours) * time.Hour,
		now: time.Now,
	}, nil
}

func (c *ResponseCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// get returns the cached body for key if present and fresh.
func (c *ResponseCache) get(key string) ([]byte, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}

	var data []byte
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	var entry cachedResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if c.now().Sub(entry.StoredAt) > c.ttl {
		return nil, false
	}
	return entry.Body, true
}

func (c *ResponseCache) set(key string, body []byte) {
	if c == nil || c.db == nil {
		return
	}
	data, err := json.Marshal(cachedResponse{StoredAt: c.now(), Body: json.RawMessage(body)})
	if err != nil {
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), data)
	})
	if err != nil {
		log.Printf("[cache] write failed: %v", err)
	}
}

// Clear drops every cached response.
func (c *ResponseCache) Clear() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketResponses) != nil {
			if err := tx.DeleteBucket(bucketResponses); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(bucketResponses)
		return err
	})
}

// Prune deletes expired entries and returns how many were removed.
func (c *ResponseCache) Prune() (int, error) {
	if c == nil || c.db == nil {
		return 0, nil
	}
	now := c.now()
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		if b == nil {
			return nil
		}
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry cachedResponse
			if err := json.Unmarshal(v, &entry); err != nil || now.Sub(entry.StoredAt) > c.ttl {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

func cacheKey(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}
