package state

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// reentrantMutex is a mutex that the same goroutine may lock more than once
// without deadlocking — needed because an agent callback invoked while a
// parent mutation holds the lock (e.g. recording a react_log entry for a
// sub-event) must not self-deadlock (spec §4.1).
//
// Go has no native reentrant mutex and no portable goroutine-local storage;
// the standard trick (also used by several tracing/profiling libraries) is
// to read the calling goroutine's id out of runtime.Stack and track
// ownership by id. We take that approach rather than restructure QueryState
// around a single-owner message-queue actor (the spec's named alternative),
// because it keeps the public API a plain struct with methods, matching the
// teacher's Session type instead of an actor/channel API.
type reentrantMutex struct {
	cond  *sync.Cond
	owner int64
	depth int
}

func newReentrantMutex() *reentrantMutex {
	return &reentrantMutex{cond: sync.NewCond(&sync.Mutex{})}
}

// goroutineID parses the current goroutine's id from its stack trace header
// ("goroutine 123 [running]:"). It is only used for reentrant-lock
// bookkeeping, never for scheduling decisions.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:idx]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// Lock acquires the mutex. Safe to call again from the same goroutine
// before Unlock; each Lock must be paired with exactly one Unlock.
func (m *reentrantMutex) Lock() {
	id := goroutineID()

	m.cond.L.Lock()
	defer m.cond.L.Unlock()

	for m.depth > 0 && m.owner != id {
		m.cond.Wait()
	}
	m.owner = id
	m.depth++
}

// Unlock releases one level of the lock. Once depth reaches zero, other
// goroutines may acquire it.
func (m *reentrantMutex) Unlock() {
	m.cond.L.Lock()
	defer m.cond.L.Unlock()

	if m.depth == 0 {
		panic("state: Unlock of unlocked reentrantMutex")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Broadcast()
	}
}
