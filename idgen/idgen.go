// Package idgen provides the Value id generator injected into every
// component at registration (§6.5).
package idgen

import (
	"hash/fnv"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"mcf/value"
)

// IDGenerator produces fresh, process-unique Value ids.
type IDGenerator interface {
	Next() value.ID
}

// DefaultIDGenerator implements the reference algorithm: a hash base of
// hostname+pid computed once, XORed with a fresh nanosecond timestamp on
// every call. The timestamp used is forced to be strictly greater than
// the previous call's, so one generator never repeats an id even when the
// clock does not advance between calls.
type DefaultIDGenerator struct {
	hashBase uint64
	last     atomic.Uint64
}

// NewDefaultIDGenerator builds a generator seeded from the current host
// and process identity.
func NewDefaultIDGenerator() *DefaultIDGenerator {
	return &DefaultIDGenerator{hashBase: genHashBase()}
}

func genHashBase() uint64 {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(host))
	_, _ = h.Write([]byte(strconv.Itoa(os.Getpid())))
	return h.Sum64()
}

// Next returns hashBase XOR nanoseconds-since-epoch. Where the clock has
// not advanced past the previous call (coarse clock resolution), the
// previous value plus one is used instead, which guarantees uniqueness.
func (g *DefaultIDGenerator) Next() value.ID {
	for {
		last := g.last.Load()
		n := uint64(time.Now().UnixNano())
		if n <= last {
			n = last + 1
		}
		if g.last.CompareAndSwap(last, n) {
			return value.ID(g.hashBase ^ n)
		}
	}
}
