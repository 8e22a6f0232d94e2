package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AlanVerbner/kit/internal/registry"
)

const defaultCacheSize = 64

// Cache memoizes compiled matchers by (language, registry generation,
// ordered source content hashes). Lookups are concurrent; a rebuild for one
// language never blocks lookups or rebuilds for another.
type Cache struct {
	reg *registry.Registry
	lru *lru.Cache[string, *Matchers]

	mu    sync.Mutex
	locks map[string]*sync.Mutex // Per-language build locks
}

// NewCache creates a matcher cache backed by the given registry.
func NewCache(reg *registry.Registry) *Cache {
	c, err := lru.New[string, *Matchers](defaultCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Cache{
		reg:   reg,
		lru:   c,
		locks: make(map[string]*sync.Mutex),
	}
}

// Get returns the compiled matchers for a language, compiling on miss. The
// returned Matchers include any per-source compile errors collected during
// the build; callers decide whether partial results are acceptable.
func (c *Cache) Get(language string) (*Matchers, error) {
	sources, err := c.reg.Sources(language)
	if err != nil {
		return nil, err
	}
	key := c.key(language, sources)

	if m, ok := c.lru.Get(key); ok {
		return m, nil
	}

	lock := c.buildLock(language)
	lock.Lock()
	defer lock.Unlock()

	if m, ok := c.lru.Get(key); ok {
		return m, nil
	}

	m, err := compile(language, c.reg.GrammarName(language), sources)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, m)
	return m, nil
}

func (c *Cache) key(language string, sources []registry.QuerySource) string {
	h := sha256.New()
	for _, src := range sources {
		h.Write([]byte(src.Hash()))
	}
	return fmt.Sprintf("%s:%d:%s", language, c.reg.Generation(language), hex.EncodeToString(h.Sum(nil)[:16]))
}

func (c *Cache) buildLock(language string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[language]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[language] = lock
	}
	return lock
}
