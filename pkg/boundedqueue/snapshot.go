package boundedqueue

// Level is the coarse state of the whole queue.
type Level int

const (
	Empty Level = iota
	Partial
	Full
)

func (l Level) String() string {
	switch l {
	case Empty:
		return "empty"
	case Partial:
		return "partial"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the ring indices taken under the guard lock.
type Snapshot struct {
	Capacity int
	Head     int
	Tail     int
	Count    int
}

// Level reports whether the snapshot was taken while the queue was empty,
// partially filled or full.
func (s Snapshot) Level() Level {
	switch s.Count {
	case 0:
		return Empty
	case s.Capacity:
		return Full
	default:
		return Partial
	}
}

// Snapshot returns the current indices and count.
func (q *BoundedQueue[T]) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Capacity: q.capacity,
		Head:     q.head,
		Tail:     q.tail,
		Count:    q.count,
	}
}

// Stats counts how often callers had to suspend.
type Stats struct {
	// FullWaits is the number of times a Push found the queue full and waited.
	FullWaits uint64
	// EmptyWaits is the number of times a Pop found the queue empty and waited.
	EmptyWaits uint64
}

// Stats returns the wait counters accumulated since New.
func (q *BoundedQueue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{FullWaits: q.fullWaits, EmptyWaits: q.emptyWaits}
}
