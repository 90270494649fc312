package queue

// BlockingQueue is the set of methods the workload driver needs from a queue.
// It is used mostly as a type constraint so every implementation is checked
// at compile time against the same signatures.
type BlockingQueue[T any] interface {
	// Push adds an element to the tail and blocks while the queue is full.
	Push(T)

	// Pop removes and returns the oldest element, blocking while the queue is empty.
	Pop() T

	// TryPush adds an element without blocking. It reports false if the queue is full.
	TryPush(T) bool

	// TryPop removes the oldest element without blocking.
	// If the queue is empty it returns the zero T and false.
	TryPop() (T, bool)

	// FreeSlots returns how many more elements can be pushed before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}
