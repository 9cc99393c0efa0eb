package utils

import (
	"github.com/cespare/xxhash/v2"
)

// Hasher maps keys onto a fixed number of shards
type Hasher struct {
	shards uint64
}

// NewHasher creates a hasher over n shards
func NewHasher(n int) *Hasher {
	if n <= 0 {
		n = 1
	}
	return &Hasher{shards: uint64(n)}
}

// Hash computes the 64-bit hash of a key
func (h *Hasher) Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Shard returns the shard index for key. The same key always lands on the
// same shard.
func (h *Hasher) Shard(key string) int {
	return int(h.Hash(key) % h.shards)
}

// Shards returns the shard count
func (h *Hasher) Shards() int {
	return int(h.shards)
}
