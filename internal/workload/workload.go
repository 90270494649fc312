package workload

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i5heu/GoCondQueue/internal/queue"
	"github.com/i5heu/GoCondQueue/pkg/config"
)

// Hooks are called from the producer and consumer goroutines, outside any
// queue lock. Either may be nil.
type Hooks[T any] struct {
	Produced func(seq int, v T)
	Consumed func(seq int, v T)
}

// Sample records the queue occupancy right after one push or pop.
type Sample struct {
	At   time.Duration `json:"at_ns"`
	Op   string        `json:"op"`
	Used uint64        `json:"used"`
}

// Result holds what each task moved through the queue, in order.
type Result[T any] struct {
	Produced        []T
	Consumed        []T
	ProducerElapsed time.Duration
	ConsumerElapsed time.Duration
	Elapsed         time.Duration
	Samples         []Sample
}

// Option configures Run.
type Option func(*options)

type options struct {
	log     *zap.Logger
	samples bool
}

// WithLogger sets the logger for phase transitions and schedule warnings.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSamples records an occupancy Sample after every push and pop.
func WithSamples() Option {
	return func(o *options) { o.samples = true }
}

// Run starts one producer and one consumer on q and waits for both to finish
// their schedules. The producer pushes gen(seq) for seq = 0, 1, 2, ... across
// all of its phases; the consumer pops the same number of items when cfg is
// balanced.
//
// If either task panics, Run returns an error naming it without waiting for
// the other task, which may stay parked in the queue.
func Run[T any, Q queue.BlockingQueue[T]](
	q Q,
	cfg config.Config,
	gen func(seq int) T,
	hooks Hooks[T],
	opts ...Option,
) (Result[T], error) {
	if err := cfg.Validate(); err != nil {
		return Result[T]{}, err
	}
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Balanced() {
		o.log.Warn("producer and consumer schedules differ, one task will block forever",
			zap.Int("produced", cfg.ProducerItems()),
			zap.Int("consumed", cfg.ConsumerItems()))
	}

	var res Result[T]
	res.Produced = make([]T, 0, cfg.ProducerItems())
	res.Consumed = make([]T, 0, cfg.ConsumerItems())

	start := time.Now()
	rec := &recorder{start: start, enabled: o.samples}

	var g errgroup.Group
	failed := make(chan error, 2)

	g.Go(func() error {
		err := guard("producer", func() {
			seq := 0
			schedule(o.log, "producer", cfg.Iterations, cfg.ProducerDelays, func() {
				v := gen(seq)
				q.Push(v)
				rec.add("push", q.UsedSlots())
				res.Produced = append(res.Produced, v)
				if hooks.Produced != nil {
					hooks.Produced(seq, v)
				}
				seq++
			})
			res.ProducerElapsed = time.Since(start)
		})
		if err != nil {
			failed <- err
		}
		return err
	})

	g.Go(func() error {
		err := guard("consumer", func() {
			seq := 0
			schedule(o.log, "consumer", cfg.Iterations, cfg.ConsumerDelays, func() {
				v := q.Pop()
				rec.add("pop", q.UsedSlots())
				res.Consumed = append(res.Consumed, v)
				if hooks.Consumed != nil {
					hooks.Consumed(seq, v)
				}
				seq++
			})
			res.ConsumerElapsed = time.Since(start)
		})
		if err != nil {
			failed <- err
		}
		return err
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-failed:
		return Result[T]{}, err
	case err := <-done:
		if err != nil {
			return Result[T]{}, err
		}
	}

	res.Elapsed = time.Since(start)
	res.Samples = rec.samples
	return res, nil
}

// schedule runs step iterations times per phase, sleeping the phase's delay
// after each step.
func schedule(log *zap.Logger, role string, iterations int, delays []time.Duration, step func()) {
	for phase, delay := range delays {
		log.Debug("phase started",
			zap.String("task", role),
			zap.Int("phase", phase),
			zap.Duration("delay", delay))
		for i := 0; i < iterations; i++ {
			step()
			if delay > 0 {
				time.Sleep(delay)
			}
		}
	}
}

// guard turns a panic inside a task into an error.
func guard(role string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s task failed: %v", role, r)
		}
	}()
	fn()
	return nil
}

type recorder struct {
	mu      sync.Mutex
	start   time.Time
	enabled bool
	samples []Sample
}

func (r *recorder) add(op string, used uint64) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.samples = append(r.samples, Sample{At: time.Since(r.start), Op: op, Used: used})
	r.mu.Unlock()
}

// InOrder reports whether every consumed item matches the produced item at
// the same position.
func InOrder[T comparable](r Result[T]) bool {
	if len(r.Consumed) > len(r.Produced) {
		return false
	}
	for i, v := range r.Consumed {
		if r.Produced[i] != v {
			return false
		}
	}
	return true
}
