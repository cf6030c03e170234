package chrome

import (
	"sync"

	"github.com/mailru/easyjson"
)

// eventQueue is an unbounded FIFO of raw event params. The read loop pushes
// without ever blocking; one consumer pops. After close, pop drains what is
// left and then reports false.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []easyjson.RawMessage
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(raw easyjson.RawMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, raw)
	q.cond.Signal()
}

func (q *eventQueue) pop() (easyjson.RawMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	raw := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return raw, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
