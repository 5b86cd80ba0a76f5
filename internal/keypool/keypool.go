// Package keypool rotates API credentials across requests. A pool is
// created once at startup and injected wherever outbound calls need a
// credential; there is no package-level state.
package keypool

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// maxNumberedKeys bounds the A4F_API_KEY_N scan.
const maxNumberedKeys = 4

// ErrNoKeys is returned when construction finds no credentials.
var ErrNoKeys = errors.New("keypool: no API keys configured")

// Pool hands out credentials round-robin. Next is safe for concurrent
// use from any number of goroutines; the key list is immutable after
// construction.
type Pool struct {
	keys   []string
	cursor atomic.Uint64
}

// New builds a pool over the given keys, preserving their order.
func New(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	p := &Pool{keys: make([]string, len(keys))}
	copy(p.keys, keys)
	return p, nil
}

// FromEnv loads keys from the environment. Numbered variables
// A4F_API_KEY_1 through A4F_API_KEY_4 are collected in order (gaps are
// skipped, not treated as the end); if none are set, A4F_API_KEYS is
// read as a comma-separated list. Surrounding whitespace is trimmed.
func FromEnv() (*Pool, error) {
	var keys []string
	for i := 1; i <= maxNumberedKeys; i++ {
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("A4F_API_KEY_%d", i))); v != "" {
			keys = append(keys, v)
		}
	}
	if len(keys) == 0 {
		for _, part := range strings.Split(os.Getenv("A4F_API_KEYS"), ",") {
			if v := strings.TrimSpace(part); v != "" {
				keys = append(keys, v)
			}
		}
	}
	return New(keys)
}

// Next returns the next credential in rotation. Successive calls cycle
// through the full key list before repeating. The cursor is a free-running
// counter taken modulo the key count; exhausting uint64 would shift the
// rotation phase by one step, which no realistic call volume reaches.
func (p *Pool) Next() string {
	i := p.cursor.Add(1) - 1
	return p.keys[i%uint64(len(p.keys))]
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}
