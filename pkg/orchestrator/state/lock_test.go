package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReentrantMutex_SameGoroutineRelocks(t *testing.T) {
	m := newReentrantMutex()
	done := make(chan struct{})

	go func() {
		m.Lock()
		m.Lock() // same goroutine: must not deadlock
		m.Unlock()
		m.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant Lock from the same goroutine deadlocked")
	}
}

func TestReentrantMutex_OtherGoroutineBlocksUntilFullyUnlocked(t *testing.T) {
	m := newReentrantMutex()
	m.Lock()
	m.Lock() // depth 2

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("other goroutine acquired lock while depth > 0")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock() // depth 1, still held
	select {
	case <-acquired:
		t.Fatal("other goroutine acquired lock before depth reached 0")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock() // depth 0, released
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("other goroutine never acquired lock after full release")
	}
	wg.Wait()
}

func TestReentrantMutex_UnlockWithoutLockPanics(t *testing.T) {
	m := newReentrantMutex()
	assert.Panics(t, func() {
		m.Unlock()
	})
}
