// Package keyed provides a striped lock set so that updates to independent
// keys never contend on a single global mutex.
package keyed

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

type Locks struct {
	stripes []sync.Mutex
}

func NewLocks(n int) *Locks {
	if n <= 0 {
		n = defaultStripes
	}
	return &Locks{stripes: make([]sync.Mutex, n)}
}

func (l *Locks) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// With runs fn while holding the lock for key.
func (l *Locks) With(key string, fn func()) {
	m := l.stripe(key)
	m.Lock()
	defer m.Unlock()
	fn()
}

// Key joins parts with a NUL separator.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, 0)
		}
		b = append(b, p...)
	}
	return string(b)
}
