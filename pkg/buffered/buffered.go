package buffered

import "github.com/pkg/errors"

// ErrInvalidCapacity is returned by New for a zero buffer size.
var ErrInvalidCapacity = errors.New("buffered: capacity must be positive")

// BufferedQueue hands items from one producer to one consumer through a
// buffered Go channel. The channel's own lock plays the role of the guard lock.
type BufferedQueue[T any] struct {
	ch chan T
}

// New creates a BufferedQueue. A zero-capacity Go channel is an unbuffered
// rendezvous, not a zero-capacity buffer, so bufferSize must be at least 1.
func New[T any](bufferSize int) (*BufferedQueue[T], error) {
	if bufferSize < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", bufferSize)
	}
	return &BufferedQueue[T]{
		ch: make(chan T, bufferSize),
	}, nil
}

func (q *BufferedQueue[T]) Push(val T) {
	q.ch <- val
}

func (q *BufferedQueue[T]) Pop() T {
	return <-q.ch
}

func (q *BufferedQueue[T]) TryPush(val T) bool {
	select {
	case q.ch <- val:
		return true
	default:
		return false
	}
}

func (q *BufferedQueue[T]) TryPop() (val T, ok bool) {
	select {
	case val = <-q.ch:
		return val, true
	default:
		return val, false
	}
}

func (q *BufferedQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}

func (q *BufferedQueue[T]) UsedSlots() uint64 {
	return uint64(len(q.ch))
}
