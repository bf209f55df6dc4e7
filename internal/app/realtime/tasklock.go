package realtime

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// taskLocks hands out one mutex per task id. Entries are removed when the
// last holder or waiter releases.
type taskLocks struct {
	mu    sync.Mutex
	locks map[primitive.ObjectID]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[primitive.ObjectID]*taskLock)}
}

// lock blocks until the caller holds id and returns the release func.
func (t *taskLocks) lock(id primitive.ObjectID) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &taskLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

func (t *taskLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
