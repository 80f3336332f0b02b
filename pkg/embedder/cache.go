package embedder

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/avert/pkg/logger"
)

// CachedClient memoizes embeddings of another Client in a badger store.
// Candidate phrasings repeat across questions, so most of them are served
// from the cache after the first few requests.
type CachedClient struct {
	inner  Client
	db     *badger.DB
	model  string
	logger *slog.Logger

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// CacheConfig configures the badger store.
type CacheConfig struct {
	// Dir is the badger directory. An empty Dir keeps the cache in memory.
	Dir string `mapstructure:"dir"`
	// Model is mixed into the keys so different models never share entries.
	Model string `mapstructure:"-"`
}

// NewCachedClient opens the store and wraps inner.
func NewCachedClient(inner Client, cfg CacheConfig, log *slog.Logger) (*CachedClient, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &CachedClient{inner: inner, db: db, model: cfg.Model, logger: logger.OrDiscard(log)}, nil
}

// Embed returns cached vectors and embeds only the texts not seen before,
// in a single call to the wrapped client.
func (c *CachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, text)
				missingAt = append(missingAt, i)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			vec, err := decodeVector(raw)
			if err != nil {
				return err
			}
			out[i] = vec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}

	c.mu.Lock()
	c.hits += uint64(len(texts) - len(missing))
	c.misses += uint64(len(missing))
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		// Let the caller's count check see the mismatch.
		if len(missing) == len(texts) {
			return fresh, nil
		}
		return nil, fmt.Errorf("embedder returned %d embeddings for %d uncached texts", len(fresh), len(missing))
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for j, vec := range fresh {
			if err := txn.Set(c.key(missing[j]), encodeVector(vec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to store embeddings in cache", "error", err, "count", len(fresh))
	}

	for j, idx := range missingAt {
		out[idx] = fresh[j]
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *CachedClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, c, text)
}

// Stats returns the number of cache hits and misses so far.
func (c *CachedClient) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close closes the store and the wrapped client.
func (c *CachedClient) Close() error {
	return errors.Join(c.db.Close(), c.inner.Close())
}

func (c *CachedClient) key(text string) []byte {
	h := sha1.Sum([]byte(c.model + "|" + text))
	return []byte("emb:" + hex.EncodeToString(h[:]))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("cache entry broken: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data) < 4+4*n {
		return nil, fmt.Errorf("cache entry truncated: want %d floats, have %d bytes", n, len(data)-4)
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return v, nil
}
