package main

import "sync"

// bufferAccountant tracks the bytes reserved by in-flight uploads against a
// process wide maximum.
type bufferAccountant struct {
	mut      sync.Mutex
	reserved int64
	max      int64
}

func newBufferAccountant(max int64) *bufferAccountant {
	return &bufferAccountant{max: max}
}

// Reserve adds n to the reserved total unless that would exceed the
// maximum.
func (b *bufferAccountant) Reserve(n int64) bool {
	if n < 0 {
		return false
	}
	b.mut.Lock()
	defer b.mut.Unlock()
	if n > b.max-b.reserved {
		return false
	}
	b.reserved += n
	metricBufferReservedBytes.Set(float64(b.reserved))
	return true
}

// Release gives back n previously reserved bytes. The total never drops
// below zero.
func (b *bufferAccountant) Release(n int64) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.reserved -= n
	if b.reserved < 0 {
		l.Warnf("Buffer accounting went negative (%d), resetting", b.reserved)
		b.reserved = 0
	}
	metricBufferReservedBytes.Set(float64(b.reserved))
}

func (b *bufferAccountant) Reserved() int64 {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.reserved
}

func (b *bufferAccountant) Max() int64 {
	return b.max
}
