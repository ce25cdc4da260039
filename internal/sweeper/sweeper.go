// Package sweeper returns expired claims to the pending pool on a schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/jonboulle/clockwork"
)

// Reclaimer is the part of the lease controller the sweeper drives.
type Reclaimer interface {
	Expired(ctx context.Context, limit int) ([]model.Request, error)
	ReclaimExpired(ctx context.Context, id string) (bool, error)
}

type Options struct {
	// Interval between runs; zero disables the in-process schedule.
	Interval time.Duration
	Batch    int
	Clock    clockwork.Clock
}

// Result summarizes one run.
type Result struct {
	Scanned   int           `json:"scanned"`
	Reclaimed int           `json:"reclaimed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type Sweeper struct {
	leases Reclaimer
	opts   Options
	log    *slog.Logger
}

func New(leases Reclaimer, opts Options, log *slog.Logger) *Sweeper {
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Sweeper{leases: leases, opts: opts, log: log.With("component", "sweeper")}
}

// RunOnce reclaims every request whose lease has expired. It is idempotent
// and safe to run concurrently with itself: a request reclaimed elsewhere
// is simply skipped. Per-request failures are joined into the error.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := s.opts.Clock.Now()
	var (
		res  Result
		errs []error
	)
	for {
		batch, err := s.leases.Expired(ctx, s.opts.Batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired: %w", err))
			break
		}
		progress := 0
		for _, r := range batch {
			res.Scanned++
			ok, err := s.leases.ReclaimExpired(ctx, r.ID)
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("reclaim %s: %w", r.ID, err))
				continue
			}
			if ok {
				res.Reclaimed++
			}
			progress++
		}
		// A short batch means the backlog is drained; a batch with no
		// progress would be listed again unchanged.
		if len(batch) < s.opts.Batch || progress == 0 || ctx.Err() != nil {
			break
		}
	}
	res.Duration = s.opts.Clock.Since(start)

	err := errors.Join(errs...)
	attrs := []any{"scanned", res.Scanned, "reclaimed", res.Reclaimed, "failed", res.Failed, "duration", res.Duration}
	if err != nil {
		s.log.ErrorContext(ctx, "sweep finished with errors", append(attrs, "error", err)...)
	} else {
		s.log.InfoContext(ctx, "sweep finished", attrs...)
	}
	return res, err
}

// Run sweeps every Interval until ctx is done. Errors of a run are logged
// and the schedule continues.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		s.log.InfoContext(ctx, "in-process sweep disabled")
		return nil
	}
	ticker := s.opts.Clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			_, _ = s.RunOnce(ctx)
		}
	}
}
