package services

import (
	"errors"
	"fmt"
	"sync"
)

// PartialError reports a bulk operation that stopped part way. The first
// Applied of Total steps were persisted; Err is the failure that stopped
// the rest.
type PartialError struct {
	Op      string
	Applied int
	Total   int
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: applied %d of %d: %v", e.Op, e.Applied, e.Total, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// IsPartial reports whether err is a PartialError.
func IsPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}

// keyedMutex hands out one mutex per key so read-modify-write sequences on
// the same remesa never interleave.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
