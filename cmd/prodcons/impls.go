package main

import (
	"github.com/i5heu/GoCondQueue/pkg/boundedqueue"
	"github.com/i5heu/GoCondQueue/pkg/buffered"
)

type intQueue = interface {
	Push(int)
	Pop() int
	TryPush(int) bool
	TryPop() (int, bool)
	FreeSlots() uint64
	UsedSlots() uint64
}

// waitStats is implemented by queues that count how often callers suspended.
type waitStats interface {
	Stats() boundedqueue.Stats
}

// Implementation represents a queue implementation.
type Implementation struct {
	name        string
	description string
	pkgName     string
	features    []string
	newQueue    func(capacity int, observer boundedqueue.Observer) (intQueue, error)
}

func findImplementation(name string) (Implementation, bool) {
	for _, impl := range getImplementations() {
		if impl.name == name {
			return impl, true
		}
	}
	return Implementation{}, false
}

func implementationNames() []string {
	impls := getImplementations()
	names := make([]string, 0, len(impls))
	for _, impl := range impls {
		names = append(names, impl.name)
	}
	return names
}

// getImplementations enumerates the queue implementations the runner can drive.
func getImplementations() []Implementation {
	return []Implementation{
		{
			name:        "cond",
			pkgName:     "boundedqueue",
			description: "Ring buffer guarded by a mutex with not-full and not-empty condition variables.",
			features:    []string{"SPSC", "FIFO", "Backpressure-Events", "Wait-Stats"},
			newQueue: func(capacity int, observer boundedqueue.Observer) (intQueue, error) {
				var opts []boundedqueue.Option
				if observer != nil {
					opts = append(opts, boundedqueue.WithObserver(observer))
				}
				q, err := boundedqueue.New[int](capacity, opts...)
				if err != nil {
					return nil, err
				}
				return q, nil
			},
		},
		{
			name:        "channel",
			pkgName:     "buffered",
			description: "Buffered Go channel; the runtime's channel lock replaces the explicit guard lock.",
			features:    []string{"SPSC", "FIFO"},
			newQueue: func(capacity int, _ boundedqueue.Observer) (intQueue, error) {
				q, err := buffered.New[int](capacity)
				if err != nil {
					return nil, err
				}
				return q, nil
			},
		},
	}
}
