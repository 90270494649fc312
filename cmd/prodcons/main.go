// Command prodcons runs one producer and one consumer against a bounded queue
// and reports what moved through it.
//
// Usage:
//
//	go run ./cmd/prodcons -capacity 10 -iter 20 -producer-delays 100ms,200ms -consumer-delays 200ms,500ms
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/i5heu/GoCondQueue/internal/logging"
	"github.com/i5heu/GoCondQueue/internal/report"
	"github.com/i5heu/GoCondQueue/internal/workload"
	"github.com/i5heu/GoCondQueue/pkg/boundedqueue"
	"github.com/i5heu/GoCondQueue/pkg/config"
)

// durationList is a comma-separated list of durations, one per phase.
type durationList []time.Duration

func (d *durationList) String() string {
	parts := make([]string, len(*d))
	for i, v := range *d {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

func (d *durationList) Set(s string) error {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := time.ParseDuration(part)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*d = out
	return nil
}

type options struct {
	configPath     string
	capacity       int
	iterations     int
	producerDelays durationList
	consumerDelays durationList
	impl           string
	quiet          bool
	progress       bool
	jsonExport     bool
	jsonFile       string
	markdownTable  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if opts.markdownTable {
		if err := outputMarkdownTable(opts.jsonFile, stdout); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		return 0
	}

	cfg, err := buildConfig(fs, opts)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	log, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	result, err := runOnce(cfg, opts, log, stdout, stderr)
	if err != nil {
		log.Error("run failed", zap.Error(err))
		return 1
	}

	if opts.jsonExport {
		session := report.FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  report.GatherSystemInfo(),
			Runs:        []report.RunResult{result},
		}
		if err := report.Append(opts.jsonFile, session); err != nil {
			log.Error("failed to write report", zap.Error(err))
			return 1
		}
		fmt.Fprintf(stdout, "Wrote results to %s\n", opts.jsonFile)
	}
	return 0
}

func newFlagSet(opts *options, output io.Writer) *flag.FlagSet {
	defaults := config.Default()
	opts.producerDelays = durationList(defaults.ProducerDelays)
	opts.consumerDelays = durationList(defaults.ConsumerDelays)

	fs := flag.NewFlagSet("prodcons", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file; explicit flags override it")
	fs.IntVar(&opts.capacity, "capacity", defaults.Capacity, "Queue capacity")
	fs.IntVar(&opts.iterations, "iter", defaults.Iterations, "Iterations per delay phase")
	fs.Var(&opts.producerDelays, "producer-delays", "Comma-separated producer delay per phase")
	fs.Var(&opts.consumerDelays, "consumer-delays", "Comma-separated consumer delay per phase")
	fs.StringVar(&opts.impl, "impl", "cond", "Queue implementation: "+strings.Join(implementationNames(), ", "))
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress per-item output")
	fs.BoolVar(&opts.progress, "progress", false, "Display a progress bar with ETA")
	fs.BoolVar(&opts.jsonExport, "json", false, "Append the session to -jsonfile")
	fs.StringVar(&opts.jsonFile, "jsonfile", "run-results.json", "Path to the JSON report")
	fs.BoolVar(&opts.markdownTable, "markdown-table", false, "Output markdown table from -jsonfile and exit")
	return fs
}

// buildConfig layers the config file, then explicitly set flags, over the defaults.
func buildConfig(fs *flag.FlagSet, opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capacity":
			cfg.Capacity = opts.capacity
		case "iter":
			cfg.Iterations = opts.iterations
		case "producer-delays":
			cfg.ProducerDelays = opts.producerDelays
		case "consumer-delays":
			cfg.ConsumerDelays = opts.consumerDelays
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runOnce(cfg config.Config, opts options, log *zap.Logger, stdout, stderr io.Writer) (report.RunResult, error) {
	impl, ok := findImplementation(opts.impl)
	if !ok {
		return report.RunResult{}, errors.Errorf("unknown implementation %q (want one of %s)",
			opts.impl, strings.Join(implementationNames(), ", "))
	}

	q, err := impl.newQueue(cfg.Capacity, backpressureLogger(log))
	if err != nil {
		return report.RunResult{}, err
	}

	var bar *progressbar.ProgressBar
	if opts.progress {
		bar = progressbar.NewOptions(cfg.ConsumerItems(),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("consumed"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	hooks := workload.Hooks[int]{
		Consumed: func(_ int, v int) {
			if !opts.quiet {
				log.Info("consumer: received.", zap.Int("item", v))
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	}

	log.Info("run started",
		zap.String("implementation", impl.name),
		zap.Int("capacity", cfg.Capacity),
		zap.Int("iterations", cfg.Iterations),
		zap.Durations("producer_delays", cfg.ProducerDelays),
		zap.Durations("consumer_delays", cfg.ConsumerDelays))

	res, err := workload.Run(q, cfg, func(seq int) int { return seq }, hooks,
		workload.WithLogger(log), workload.WithSamples())
	if err != nil {
		return report.RunResult{}, err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	var stats boundedqueue.Stats
	if ws, ok := q.(waitStats); ok {
		stats = ws.Stats()
	}
	inOrder := workload.InOrder(res)

	fmt.Fprintf(stdout, "%s => produced=%d, consumed=%d, full_waits=%d, empty_waits=%d, in_order=%t, took=%v\n",
		impl.name, len(res.Produced), len(res.Consumed), stats.FullWaits, stats.EmptyWaits, inOrder, res.Elapsed)

	return report.RunResult{
		Implementation: impl.name,
		Capacity:       cfg.Capacity,
		Iterations:     cfg.Iterations,
		ProducerDelays: durationStrings(cfg.ProducerDelays),
		ConsumerDelays: durationStrings(cfg.ConsumerDelays),
		NumProduced:    len(res.Produced),
		NumConsumed:    len(res.Consumed),
		FullWaits:      stats.FullWaits,
		EmptyWaits:     stats.EmptyWaits,
		InOrder:        inOrder,
		Elapsed:        res.Elapsed.String(),
		Timestamp:      time.Now().Unix(),
		GoVersion:      runtime.Version(),
		Samples:        res.Samples,
	}, nil
}

// backpressureLogger reports every wait on a full or empty queue.
func backpressureLogger(log *zap.Logger) boundedqueue.Observer {
	return func(e boundedqueue.Event) {
		switch e.Op {
		case boundedqueue.OpPush:
			log.Info("producer: queue full.", zap.Int("waits", e.Waits), zap.Int("used", e.Used))
		case boundedqueue.OpPop:
			log.Info("consumer: queue empty.", zap.Int("waits", e.Waits), zap.Int("used", e.Used))
		}
	}
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table of its last session.
func outputMarkdownTable(jsonFile string, w io.Writer) error {
	sessions, err := report.Load(jsonFile)
	if err != nil {
		return err
	}
	last, err := report.Last(sessions)
	if err != nil {
		return err
	}
	report.WriteMarkdownTable(w, last)
	return nil
}

func durationStrings(ds []time.Duration) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
