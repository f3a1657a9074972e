package server

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// idsCache keeps the token ids of recently encoded texts. Stored and returned
// slices are copies so callers may mutate what they get back.
type idsCache struct {
	cache *lru.Cache[string, []uint32]
}

// newIDsCache returns nil when size is not positive; a nil cache misses on
// every lookup and ignores additions.
func newIDsCache(size int) (*idsCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, []uint32](size)
	if err != nil {
		return nil, err
	}
	return &idsCache{cache: c}, nil
}

func (c *idsCache) Get(text string) ([]uint32, bool) {
	if c == nil {
		return nil, false
	}
	ids, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	return slices.Clone(ids), true
}

func (c *idsCache) Add(text string, ids []uint32) {
	if c == nil {
		return
	}
	c.cache.Add(text, slices.Clone(ids))
}

func (c *idsCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
