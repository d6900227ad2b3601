package keyed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyDistinguishesParts(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Equal(t, Key("cam1", "V001"), Key("cam1", "V001"))
}

func TestLocksSerializeSameKey(t *testing.T) {
	locks := NewLocks(4)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.With("cam1", func() { counter++ })
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}
