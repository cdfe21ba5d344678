// Package portalloc hands out local listener ports for concurrent engine
// instances. Every port it returns lies in [Min, Max).
package portalloc

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	DefaultMin = 20000
	DefaultMax = 40000
)

// Allocator returns a local port for the verification identified by key.
type Allocator interface {
	Allocate(key string) int
}

// New builds the allocator named by strategy ("counter" or "hash").
func New(strategy string, min, max int) (Allocator, error) {
	if min < 1 || max > 65536 || min >= max {
		return nil, fmt.Errorf("invalid port range [%d,%d)", min, max)
	}
	switch strategy {
	case "", "counter":
		return NewCounter(min, max), nil
	case "hash":
		return &Hash{Min: min, Max: max}, nil
	default:
		return nil, fmt.Errorf("unknown port strategy %q", strategy)
	}
}

// Counter walks the range in order and wraps around. Two callers never
// get the same port until the whole range has been handed out.
type Counter struct {
	mu       sync.Mutex
	min, max int
	next     int
}

func NewCounter(min, max int) *Counter {
	return &Counter{min: min, max: max, next: min}
}

func (c *Counter) Allocate(string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.next
	c.next++
	if c.next >= c.max {
		c.next = c.min
	}
	return p
}

// Hash maps the key deterministically into the range. Distinct keys may
// collide; the losing verification fails its probe.
type Hash struct {
	Min, Max int
}

func (h *Hash) Allocate(key string) int {
	sum := sha1.Sum([]byte(key))
	// Top 24 bits of the digest.
	v := binary.BigEndian.Uint32(sum[:4]) >> 8
	return h.Min + int(v%uint32(h.Max-h.Min))
}
