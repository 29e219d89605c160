package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	km := New()

	const goroutines = 50
	counter := 0

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			km.Lock(1)
			defer km.Unlock(1)
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestKeyMutex_DifferentKeysIndependent(t *testing.T) {
	km := New()

	km.Lock(1)
	done := make(chan struct{})
	go func() {
		km.Lock(2)
		km.Unlock(2)
		close(done)
	}()
	<-done // would deadlock if key 2 waited on key 1
	km.Unlock(1)
}

func TestKeyMutex_EntriesReleased(t *testing.T) {
	km := New()

	km.Lock(7)
	km.Unlock(7)

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.entries)
}
