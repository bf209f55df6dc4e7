package realtime

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTaskLocks_SerializesSameTask(t *testing.T) {
	locks := newTaskLocks()
	id := primitive.NewObjectID()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
	if locks.size() != 0 {
		t.Errorf("expected lock table empty, got %d", locks.size())
	}
}

func TestTaskLocks_DifferentTasksDoNotBlock(t *testing.T) {
	locks := newTaskLocks()
	a := locks.lock(primitive.NewObjectID())
	defer a()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock(primitive.NewObjectID())
		unlock()
		close(done)
	}()
	<-done
}
