// Package fusionqueue implements the bounded, blocking multi-producer/
// single-consumer queue that carries measurement batches from
// sensor adapters to the fusion coordinator. It is a single shared ring
// buffer guarded by one mutex and two condition variables, modeled on
// the classic bounded-buffer pattern: push never blocks (fail-fast for
// sensor threads), pop can wait up to a caller-supplied timeout.
package fusionqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// ErrOverflow is returned by Push when the queue is at capacity. The
// caller's batch is not retained; ownership stays with the producer.
var ErrOverflow = errors.New("fusionqueue: overflow")

// ErrTimedOut is returned by Pop when no message arrived before the
// deadline. Callers should treat this as a normal idle tick, not an error.
var ErrTimedOut = errors.New("fusionqueue: timed out")

// Message is a single queued unit: which sensor it came from, when it was
// produced, and a retained handle to its measurement batch.
type Message struct {
	SensorID  int
	Timestamp time.Time
	Batch     *trackbatch.Batch

	// TraceID correlates a message across the producer/consumer boundary
	// in logs; it carries no protocol meaning.
	TraceID uuid.UUID
}

// Queue is a fixed-capacity FIFO of Messages.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf      []Message
	head     int
	tail     int
	count    int
	capacity int

	closed bool
}

// New creates a Queue with the given capacity. Capacity must be positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("fusionqueue: capacity must be positive")
	}
	q := &Queue{
		buf:      make([]Message, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues msg. It never blocks: if the queue is full it returns
// ErrOverflow immediately without retaining msg.Batch, so the caller
// keeps sole ownership and may drop it.
func (q *Queue) Push(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		return ErrOverflow
	}

	msg.Batch.Retain()
	if msg.TraceID == uuid.Nil {
		msg.TraceID = uuid.New()
	}
	q.buf[q.tail] = msg
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest message.
//
//   - timeout < 0: wait indefinitely until a message is available.
//   - timeout == 0: return ErrTimedOut immediately if the queue is empty.
//   - timeout > 0: wait at most that long, guarding against spurious
//     wakeups with an absolute deadline.
//
// On success the retained reference transfers to the caller, who must
// call msg.Batch.Release() exactly once.
func (q *Queue) Pop(timeout time.Duration) (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if timeout < 0 {
		for q.count == 0 && !q.closed {
			q.notEmpty.Wait()
		}
	} else if timeout == 0 {
		if q.count == 0 {
			return Message{}, ErrTimedOut
		}
	} else {
		deadline := time.Now().Add(timeout)
		for q.count == 0 && !q.closed {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return Message{}, ErrTimedOut
			}
			q.waitWithTimeout(remaining)
		}
		if q.count == 0 {
			return Message{}, ErrTimedOut
		}
	}

	if q.count == 0 {
		return Message{}, ErrTimedOut
	}

	msg := q.buf[q.head]
	q.buf[q.head] = Message{} // clear the slot's batch handle pointer
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.notFull.Signal()
	return msg, nil
}

// waitWithTimeout waits on notEmpty for at most d. sync.Cond has no
// native timed wait, so this arms a timer that broadcasts the condition
// when it fires; the caller re-checks its deadline after waking, which
// guards against both spurious wakeups and the timer racing a real signal.
func (q *Queue) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.notEmpty.Wait()
}

// Size returns the number of messages currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Destroy releases every queued message's batch handle and marks the
// queue closed, waking any blocked Pop calls. Safe to call more than once.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % q.capacity
		if q.buf[idx].Batch != nil {
			q.buf[idx].Batch.Release()
		}
	}
	q.buf = nil
	q.count = 0
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
