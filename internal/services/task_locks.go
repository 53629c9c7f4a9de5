package services

import (
	"sync"
)

// taskLocks per-task mutexes. An entry lives only while a caller holds or waits on it.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*taskLock)}
}

// acquire blocks until the task's lock is held and returns its release func
func (l *taskLocks) acquire(taskID string) func() {
	l.mu.Lock()
	lock, exists := l.locks[taskID]
	if !exists {
		lock = &taskLock{}
		l.locks[taskID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, taskID)
		}
		l.mu.Unlock()
	}
}

func (l *taskLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
