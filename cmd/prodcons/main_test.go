package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoCondQueue/internal/queue"
	"github.com/i5heu/GoCondQueue/internal/report"
	"github.com/i5heu/GoCondQueue/pkg/boundedqueue"
	"github.com/i5heu/GoCondQueue/pkg/buffered"
)

// Compile-time enforcement that every implementation fits the driver's constraint.
func enforceBlockingQueue[T any, Q queue.BlockingQueue[T]]() {}

var (
	_ = enforceBlockingQueue[int, *boundedqueue.BoundedQueue[int]]
	_ = enforceBlockingQueue[int, *buffered.BufferedQueue[int]]
)

// progressWatchdog monitors progress and fails the test if no progress is made for 15 seconds.
type progressWatchdog struct {
	t            *testing.T
	label        string
	lastProgress atomic.Int64
	done         chan struct{}
}

func newWatchdog(t *testing.T, label string) *progressWatchdog {
	wd := &progressWatchdog{
		t:     t,
		label: label,
		done:  make(chan struct{}),
	}
	wd.lastProgress.Store(time.Now().UnixNano())
	return wd
}

func (wd *progressWatchdog) Start() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				last := wd.lastProgress.Load()
				elapsed := time.Since(time.Unix(0, last))
				if elapsed > 15*time.Second {
					wd.t.Errorf("No progress in the last 15 seconds (%s test likely stuck).", wd.label)
					return
				}
			case <-wd.done:
				return
			}
		}
	}()
}

func (wd *progressWatchdog) Progress() {
	wd.lastProgress.Store(time.Now().UnixNano())
}

func (wd *progressWatchdog) Stop() {
	close(wd.done)
}

// withAllQueues loops over all implementations and calls fn for each one,
// skipping implementations that lack one of testedFeatures.
func withAllQueues(t *testing.T, testedFeatures []string, fn func(t *testing.T, impl Implementation)) {
	t.Helper()
	for _, impl := range getImplementations() {
		t.Run(impl.name, func(t *testing.T) {
			for _, feature := range testedFeatures {
				found := false
				for _, implFeature := range impl.features {
					if feature == implFeature {
						found = true
						break
					}
				}
				if !found {
					t.Skipf("Skipping: missing feature %q", feature)
					return
				}
			}
			fn(t, impl)
		})
	}
}

func mustQueue(t *testing.T, impl Implementation, capacity int) intQueue {
	t.Helper()
	q, err := impl.newQueue(capacity, nil)
	require.NoError(t, err)
	return q
}

func TestBasicFIFO(t *testing.T) {
	withAllQueues(t, []string{"FIFO"}, func(t *testing.T, impl Implementation) {
		const N = 1024
		q := mustQueue(t, impl, N)

		wd := newWatchdog(t, "BasicFIFO")
		wd.Start()
		defer wd.Stop()

		for i := 0; i < N; i++ {
			q.Push(i)
			wd.Progress()
		}
		for i := 0; i < N; i++ {
			require.Equal(t, i, q.Pop(), "index %d", i)
			wd.Progress()
		}
	})
}

func TestEmptyQueue(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		q := mustQueue(t, impl, 4)
		_, ok := q.TryPop()
		assert.False(t, ok)
		assert.Equal(t, uint64(0), q.UsedSlots())
		assert.Equal(t, uint64(4), q.FreeSlots())
	})
}

func TestWrapAround(t *testing.T) {
	withAllQueues(t, []string{"FIFO"}, func(t *testing.T, impl Implementation) {
		const capacity = 8
		q := mustQueue(t, impl, capacity)

		next, want := 0, 0
		for round := 0; round < 100; round++ {
			for i := 0; i < capacity-1; i++ {
				q.Push(next)
				next++
			}
			for i := 0; i < capacity-1; i++ {
				require.Equal(t, want, q.Pop())
				want++
			}
		}
		assert.Equal(t, uint64(0), q.UsedSlots())
	})
}

func TestUsedFreeSlots(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		q := mustQueue(t, impl, 5)
		for i := 1; i <= 5; i++ {
			q.Push(i)
			assert.Equal(t, uint64(i), q.UsedSlots())
			assert.Equal(t, uint64(5-i), q.FreeSlots())
		}
		assert.False(t, q.TryPush(6))
	})
}

func TestZeroCapacityQueue(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		for _, capacity := range []int{0, -1} {
			q, err := impl.newQueue(capacity, nil)
			assert.Error(t, err, "capacity %d", capacity)
			assert.Nil(t, q)
		}
	})
}

// With three items queued and no consumer, a fourth Push must block rather
// than overwrite, and complete once a slot frees.
func TestFullQueueBlocking(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		const capacity = 3
		q := mustQueue(t, impl, capacity)
		for i := 0; i < capacity; i++ {
			q.Push(i)
		}
		require.Equal(t, uint64(0), q.FreeSlots())

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.Push(9999)
		}()

		select {
		case <-done:
			t.Fatal("Expected Push to block, but goroutine completed immediately")
		case <-time.After(100 * time.Millisecond):
		}
		assert.Equal(t, uint64(capacity), q.UsedSlots())

		assert.Equal(t, 0, q.Pop())

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Push goroutine did not unblock after freeing a slot")
		}
		assert.Equal(t, []int{1, 2, 9999}, []int{q.Pop(), q.Pop(), q.Pop()})
	})
}

func TestEmptyQueueBlocking(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		q := mustQueue(t, impl, 2)

		got := make(chan int, 1)
		go func() { got <- q.Pop() }()

		select {
		case v := <-got:
			t.Fatalf("Pop returned %d from an empty queue", v)
		case <-time.After(100 * time.Millisecond):
		}

		q.Push(7)
		select {
		case v := <-got:
			assert.Equal(t, 7, v)
		case <-time.After(2 * time.Second):
			t.Fatal("Pop goroutine did not unblock after Push")
		}
	})
}

func TestAlternatingSingleCapacity(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		q := mustQueue(t, impl, 1)
		wd := newWatchdog(t, "AlternatingSingleCapacity")
		wd.Start()
		defer wd.Stop()

		const iterations = 100000
		for i := 0; i < iterations; i++ {
			q.Push(i)
			wd.Progress()
			if v := q.Pop(); v != i {
				t.Fatalf("Expected %d, got %d at iteration %d", i, v, i)
			}
			wd.Progress()
		}
		assert.Equal(t, uint64(0), q.UsedSlots())
	})
}

func TestNoReorderingOnBackpressure(t *testing.T) {
	withAllQueues(t, []string{"FIFO"}, func(t *testing.T, impl Implementation) {
		const (
			capacity   = 4
			totalItems = 200
		)
		q := mustQueue(t, impl, capacity)
		wd := newWatchdog(t, "NoReorderingOnBackpressure")
		wd.Start()
		defer wd.Stop()

		go func() {
			for i := 0; i < totalItems; i++ {
				q.Push(i)
				wd.Progress()
			}
		}()

		received := make([]int, 0, totalItems)
		for len(received) < totalItems {
			received = append(received, q.Pop())
			if len(received)%10 == 0 {
				time.Sleep(time.Millisecond)
			}
			wd.Progress()
		}

		for i, v := range received {
			if v != i {
				t.Fatalf("FIFO violation at index %d: got %d", i, v)
			}
		}
	})
}

func TestBackpressureEvents(t *testing.T) {
	withAllQueues(t, []string{"Backpressure-Events", "Wait-Stats"}, func(t *testing.T, impl Implementation) {
		events := make(chan boundedqueue.Event, 1)
		q, err := impl.newQueue(1, func(e boundedqueue.Event) { events <- e })
		require.NoError(t, err)

		got := make(chan int, 1)
		go func() { got <- q.Pop() }()
		require.Eventually(t, func() bool {
			return q.(waitStats).Stats().EmptyWaits == 1
		}, 2*time.Second, time.Millisecond)

		q.Push(1)
		assert.Equal(t, 1, <-got)
		e := <-events
		assert.Equal(t, boundedqueue.OpPop, e.Op)
		assert.Equal(t, 1, e.Waits)
	})
}

func fastArgs(jsonFile string, extra ...string) []string {
	args := []string{
		"-capacity", "2",
		"-iter", "3",
		"-producer-delays", "1ms,0s",
		"-consumer-delays", "2ms,1ms",
		"-quiet",
		"-jsonfile", jsonFile,
	}
	return append(args, extra...)
}

func TestRunWritesReport(t *testing.T) {
	withAllQueues(t, nil, func(t *testing.T, impl Implementation) {
		path := filepath.Join(t.TempDir(), "run-results.json")
		var stdout, stderr bytes.Buffer

		code := run(fastArgs(path, "-impl", impl.name, "-json"), &stdout, &stderr)
		require.Equal(t, 0, code, stderr.String())
		assert.Contains(t, stdout.String(), impl.name+" => produced=6, consumed=6")
		assert.Contains(t, stdout.String(), "in_order=true")

		sessions, err := report.Load(path)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		r := sessions[0].Runs[0]
		assert.Equal(t, impl.name, r.Implementation)
		assert.Equal(t, 2, r.Capacity)
		assert.Equal(t, []string{"1ms", "0s"}, r.ProducerDelays)
		assert.Equal(t, 6, r.NumProduced)
		assert.Equal(t, 6, r.NumConsumed)
		assert.True(t, r.InOrder)
		assert.Len(t, r.Samples, 12)

		stdout.Reset()
		require.Equal(t, 0, run([]string{"-markdown-table", "-jsonfile", path}, &stdout, &stderr))
		assert.Contains(t, stdout.String(), "| "+impl.name+" | 2 |")
	})
}

func TestRunFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-results.json")
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, 2},
		{"bad duration", []string{"-producer-delays", "soon"}, 2},
		{"zero capacity", fastArgs(path, "-capacity", "0"), 1},
		{"zero iterations", fastArgs(path, "-iter", "0"), 1},
		{"unknown implementation", fastArgs(path, "-impl", "lockfree"), 1},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml")}, 1},
		{"missing report", []string{"-markdown-table", "-jsonfile", path}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(tt.args, &stdout, &stderr))
		})
	}
}

func TestBuildConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capacity: 4\niterations: 9\n"), 0o644))

	opts := options{}
	fs := newFlagSet(&opts, io.Discard)
	require.NoError(t, fs.Parse([]string{"-config", path, "-iter", "7"}))

	cfg, err := buildConfig(fs, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Capacity)
	assert.Equal(t, 7, cfg.Iterations)
	assert.Len(t, cfg.ProducerDelays, 2)
}
