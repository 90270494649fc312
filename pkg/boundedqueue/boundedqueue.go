// Package boundedqueue implements a fixed-capacity FIFO shared by one producer
// and one consumer. A single mutex guards the ring buffer and two condition
// variables park the producer while the buffer is full and the consumer while
// it is empty.
package boundedqueue

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidCapacity is returned by New when the capacity is not positive.
var ErrInvalidCapacity = errors.New("boundedqueue: capacity must be positive")

// Op names the operation that produced an Event.
type Op string

const (
	OpPush Op = "push"
	OpPop  Op = "pop"
)

// Event describes a Push or Pop that had to wait. It is delivered to the
// Observer after the guard lock has been released.
type Event struct {
	Op Op
	// Waits is how many times the caller suspended before it could proceed.
	Waits int
	// Used is the number of occupied slots right after the operation.
	Used int
}

// Observer receives backpressure events. It runs on the goroutine that called
// Push or Pop and must not call back into the same queue's blocking methods.
type Observer func(Event)

// Option configures a BoundedQueue.
type Option func(*options)

type options struct {
	observer Observer
}

// WithObserver installs fn as the queue's backpressure observer.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// BoundedQueue is a blocking circular buffer for a single producer and a
// single consumer. The zero value is not usable; create queues with New.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond // signalled after a pop frees a slot
	notEmpty *sync.Cond // signalled after a push fills a slot

	buffer   []T
	capacity int
	head     int
	tail     int
	count    int

	fullWaits  uint64
	emptyWaits uint64

	observer Observer
}

// New creates a BoundedQueue holding at most capacity items.
func New[T any](capacity int, opts ...Option) (*BoundedQueue[T], error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	q := &BoundedQueue[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
		observer: o.observer,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// Push appends item to the tail, blocking while the queue is full.
func (q *BoundedQueue[T]) Push(item T) {
	q.mu.Lock()
	waits := 0
	for q.count == q.capacity {
		waits++
		q.fullWaits++
		q.notFull.Wait()
	}
	q.put(item)
	used := q.count
	q.mu.Unlock()

	q.notEmpty.Signal()
	q.notify(OpPush, waits, used)
}

// Pop removes and returns the item at the head, blocking while the queue is empty.
func (q *BoundedQueue[T]) Pop() T {
	q.mu.Lock()
	waits := 0
	for q.count == 0 {
		waits++
		q.emptyWaits++
		q.notEmpty.Wait()
	}
	item := q.take()
	used := q.count
	q.mu.Unlock()

	q.notFull.Signal()
	q.notify(OpPop, waits, used)
	return item
}

// TryPush appends item only if a slot is free. It never blocks.
func (q *BoundedQueue[T]) TryPush(item T) bool {
	q.mu.Lock()
	if q.count == q.capacity {
		q.mu.Unlock()
		return false
	}
	q.put(item)
	q.mu.Unlock()

	q.notEmpty.Signal()
	return true
}

// TryPop removes the head item if there is one. It never blocks.
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	item := q.take()
	q.mu.Unlock()

	q.notFull.Signal()
	return item, true
}

// put writes item at tail. The caller holds mu and has checked count < capacity.
func (q *BoundedQueue[T]) put(item T) {
	q.buffer[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
}

// take reads the item at head. The caller holds mu and has checked count > 0.
func (q *BoundedQueue[T]) take() T {
	item := q.buffer[q.head]
	var zero T
	q.buffer[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	return item
}

func (q *BoundedQueue[T]) notify(op Op, waits, used int) {
	if q.observer == nil || waits == 0 {
		return
	}
	q.observer(Event{Op: op, Waits: waits, Used: used})
}

// Len returns the number of queued items.
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *BoundedQueue[T]) Cap() int {
	return q.capacity
}

// FreeSlots returns how many items can be pushed before Push blocks.
func (q *BoundedQueue[T]) FreeSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint64(q.capacity - q.count)
}

// UsedSlots returns how many items are queued.
func (q *BoundedQueue[T]) UsedSlots() uint64 {
	return uint64(q.Len())
}
