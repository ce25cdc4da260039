// Package feedback runs secondary quality analysis of committed responses in
// the background. Failures are retried and logged; they never touch the
// request state.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
)

// Job describes one committed response to analyze.
type Job struct {
	ResponseID      string
	RequestID       string
	RequestContent  string
	ResponseContent string
	CulturalTag     string
}

type Analyzer interface {
	Analyze(ctx context.Context, job Job) (ScoreBundle, error)
}

// Sink stores analysis results.
type Sink interface {
	AttachFeedback(ctx context.Context, responseID string, feedback []byte, at time.Time) error
}

type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	BaseDelay  time.Duration
	Timeout    time.Duration
	Clock      clockwork.Clock
}

type Dispatcher struct {
	analyzer Analyzer
	sink     Sink
	opts     Options
	jobs     chan Job
	log      *slog.Logger
}

func NewDispatcher(a Analyzer, sink Sink, opts Options, log *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		analyzer: a,
		sink:     sink,
		opts:     opts,
		jobs:     make(chan Job, opts.QueueSize),
		log:      log.With("component", "feedback"),
	}
}

// Enqueue never blocks. A full queue drops the job and reports false.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		d.log.WarnContext(ctx, "feedback queue full, job dropped",
			"response_id", job.ResponseID, "request_id", job.RequestID)
		return false
	}
}

// Run processes jobs with the configured number of workers until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-d.jobs:
					d.process(ctx, job)
				}
			}
		}()
	}
	wg.Wait()
	if n := len(d.jobs); n > 0 {
		d.log.Warn("feedback dispatcher stopped with pending jobs", "pending", n)
	}
	return nil
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	log := d.log.With("response_id", job.ResponseID, "request_id", job.RequestID)
	start := d.opts.Clock.Now()

	attempts := 0
	var bundle ScoreBundle
	backoff := retry.WithMaxRetries(d.opts.MaxRetries, retry.NewExponential(d.opts.BaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		b, err := d.analyzer.Analyze(actx, job)
		if err != nil {
			if temporary(err) {
				log.DebugContext(ctx, "analyzer attempt failed", "attempt", attempts, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		bundle = b
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "feedback analysis failed", "attempts", attempts, "error", err)
		return
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		log.ErrorContext(ctx, "feedback marshal failed", "error", err)
		return
	}
	if err := d.sink.AttachFeedback(ctx, job.ResponseID, raw, d.opts.Clock.Now().UTC()); err != nil {
		log.ErrorContext(ctx, "feedback attach failed", "error", fmt.Errorf("attach: %w", err))
		return
	}
	log.InfoContext(ctx, "feedback attached", "attempts", attempts, "duration", d.opts.Clock.Since(start))
}

func temporary(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}
