package syncutil

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100 (lost updates)", counter)
	}
}

func TestKeyedMutexManyKeys(t *testing.T) {
	var km KeyedMutex
	counts := make(map[string]int)
	var mu sync.Mutex

	keys := []string{"alice", "bob", "carol", "dave"}
	var wg sync.WaitGroup
	for _, k := range keys {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()
				mu.Lock()
				counts[key]++
				mu.Unlock()
			}(k)
		}
	}
	wg.Wait()

	for _, k := range keys {
		if counts[k] != 50 {
			t.Errorf("counts[%s] = %d, want 50", k, counts[k])
		}
	}
}
