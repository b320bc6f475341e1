package connector

import "sync"

// latch blocks until a fixed number of tasks have counted down.
type latch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func newLatch(n int) *latch {
	l := &latch{count: n}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *latch) countDown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count > 0 {
		l.count--
		if l.count == 0 {
			l.cond.Broadcast()
		}
	}
}

// wait returns once the count reached zero. Spurious wakeups are absorbed by
// re-checking the counter.
func (l *latch) wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count > 0 {
		l.cond.Wait()
	}
}
