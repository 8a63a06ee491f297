package embeddings

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"marlin/internal/logging"
)

const defaultMaxEntries = 10000

// CacheConfig holds the embeddings cache block from settings.
type CacheConfig struct {
	// Path is the on-disk location the cache loads from and saves to.
	Path string

	// WarnSize is the file size in bytes above which a warning is
	// logged. Zero disables the check.
	WarnSize int64

	// MaxEntries bounds the in-memory cache, default 10000.
	MaxEntries int
}

// Cache memoizes embedding vectors by input text. Lookups hit an
// in-memory LRU; Save and the constructor move entries to and from the
// configured file.
type Cache struct {
	config CacheConfig
	mem    *lru.Cache[string, []float32]
	logger logging.Logger

	mu sync.Mutex
}

// NewCache builds a cache and loads any previously saved entries from
// the configured path. A missing file is not an error.
func NewCache(config CacheConfig, logger logging.Logger) (*Cache, error) {
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaultMaxEntries
	}

	mem, err := lru.New[string, []float32](config.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create embeddings cache: %w", err)
	}

	c := &Cache{config: config, mem: mem, logger: logging.OrNop(logger)}
	if err := c.load(); err != nil {
		return nil, err
	}
	c.warnIfOversized()
	return c, nil
}

// Get returns the cached vector for text.
func (c *Cache) Get(text string) ([]float32, bool) {
	return c.mem.Get(text)
}

// Put stores the vector for text, evicting the least recently used
// entry when full.
func (c *Cache) Put(text string, vector []float32) {
	c.mem.Add(text, vector)
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	return c.mem.Len()
}

// Save writes all in-memory entries to the configured path.
func (c *Cache) Save() error {
	if c.config.Path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[string][]float32, c.mem.Len())
	for _, key := range c.mem.Keys() {
		if vector, ok := c.mem.Peek(key); ok {
			entries[key] = vector
		}
	}

	file, err := os.OpenFile(c.config.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("save embeddings cache: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		file.Close()
		return fmt.Errorf("encode embeddings cache: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("save embeddings cache: %w", err)
	}
	c.warnIfOversized()
	return nil
}

func (c *Cache) load() error {
	if c.config.Path == "" {
		return nil
	}
	file, err := os.Open(c.config.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load embeddings cache: %w", err)
	}
	defer file.Close()

	var entries map[string][]float32
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decode embeddings cache: %w", err)
	}
	for key, vector := range entries {
		c.mem.Add(key, vector)
	}
	return nil
}

// warnIfOversized logs when the on-disk cache has outgrown the
// configured threshold. The cache keeps working either way.
func (c *Cache) warnIfOversized() {
	if c.config.WarnSize <= 0 || c.config.Path == "" {
		return
	}
	info, err := os.Stat(c.config.Path)
	if err != nil {
		return
	}
	if info.Size() > c.config.WarnSize {
		c.logger.Warn("embeddings cache at %s is %d bytes, over the %d byte threshold; consider clearing it",
			c.config.Path, info.Size(), c.config.WarnSize)
	}
}
