package main

import (
	"math/rand/v2"
	"strconv"
	"sync/atomic"
)

// idGenerator hands out prefix1, prefix2, ... for the lifetime of the
// process.
type idGenerator struct {
	prefix string
	next   atomic.Int64
}

func newIDGenerator(prefix string) *idGenerator {
	return &idGenerator{prefix: prefix}
}

func (g *idGenerator) Next() string {
	return g.prefix + strconv.FormatInt(g.next.Add(1), 10)
}

// randomChunkSize returns a chunk size uniformly distributed in [lo, hi].
func randomChunkSize(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}
