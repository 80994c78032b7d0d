package phonetic

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct tokens kept by a CachedEncoder.
// Name fields repeat heavily across a collection, so a few thousand entries
// cover most of a back-fill pass.
const DefaultCacheSize = 4096

// CachedEncoder wraps an Encoder with an LRU cache of token codes.
// It is safe for concurrent use.
type CachedEncoder struct {
	inner Encoder
	cache *lru.Cache[string, string]
}

// NewCachedEncoder creates a cached encoder wrapping inner.
// A non-positive size selects DefaultCacheSize.
func NewCachedEncoder(inner Encoder, size int) *CachedEncoder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, string](size)
	return &CachedEncoder{
		inner: inner,
		cache: cache,
	}
}

// Encode returns the cached code for token, computing it on a miss.
func (c *CachedEncoder) Encode(token string) string {
	if code, ok := c.cache.Get(token); ok {
		return code
	}
	code := c.inner.Encode(token)
	c.cache.Add(token, code)
	return code
}

// Len returns the number of cached tokens.
func (c *CachedEncoder) Len() int {
	return c.cache.Len()
}

var _ Encoder = (*CachedEncoder)(nil)
