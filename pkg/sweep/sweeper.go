package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/trigger"
)

// Defaults used when Options fields are zero.
const (
	DefaultBatchSize   = 1000
	DefaultConcurrency = 8
	DefaultDebounce    = 5 * time.Second
)

// ErrDebounced is returned when a sweep starts inside the debounce window
// of the previous one.
var ErrDebounced = errors.New("sweep skipped: previous sweep too recent")

// Recorder receives sweep metrics.
type Recorder interface {
	RecordSweep(dispatched, failed int, elapsed time.Duration)
	RecordSweepSkipped()
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(int, int, time.Duration) {}
func (nopRecorder) RecordSweepSkipped()                 {}

// Options configures a Sweeper.
type Options struct {
	BatchSize   int
	Concurrency int
	Debounce    time.Duration
	Recorder    Recorder
	Logger      *slog.Logger

	// Now is the clock fed to the debounce limiter. Default: time.Now.
	Now func() time.Time
}

// Request selects the distributors of one sweep.
type Request struct {
	// TierID limits the sweep to one tier. Zero sweeps every tier.
	TierID int64
	// Limit caps the number of distributors. Zero means no cap.
	Limit int
}

// Report summarizes a finished sweep.
type Report struct {
	Dispatched int           `json:"dispatched"`
	Failed     int           `json:"failed"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Sweeper dispatches upgrade checks in bulk.
type Sweeper struct {
	distributors tier.DistributorStore
	publisher    trigger.Publisher
	batchSize    int
	concurrency  int
	limiter      *rate.Limiter
	now          func() time.Time
	recorder     Recorder
	logger       *slog.Logger
}

// New creates a sweeper that publishes through p.
func New(distributors tier.DistributorStore, p trigger.Publisher, opts Options) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		distributors: distributors,
		publisher:    p,
		batchSize:    opts.BatchSize,
		concurrency:  opts.Concurrency,
		limiter:      rate.NewLimiter(rate.Every(opts.Debounce), 1),
		now:          opts.Now,
		recorder:     opts.Recorder,
		logger:       opts.Logger.With("component", "sweep"),
	}
}

// Run publishes a check for every distributor matching req. Publish
// failures are counted, not returned. An error is returned when the sweep
// is debounced, the store cannot be listed, or ctx is cancelled; the report
// then covers what was dispatched so far.
func (s *Sweeper) Run(ctx context.Context, req Request) (Report, error) {
	if !s.limiter.AllowN(s.now(), 1) {
		s.recorder.RecordSweepSkipped()
		s.logger.InfoContext(ctx, "sweep debounced")
		return Report{}, ErrDebounced
	}

	start := time.Now()
	var dispatched, failed atomic.Int64
	err := s.run(ctx, req, &dispatched, &failed)

	report := Report{
		Dispatched: int(dispatched.Load()),
		Failed:     int(failed.Load()),
		Elapsed:    time.Since(start),
	}
	s.recorder.RecordSweep(report.Dispatched, report.Failed, report.Elapsed)

	if err != nil {
		s.logger.ErrorContext(ctx, "sweep aborted",
			"dispatched", report.Dispatched,
			"failed", report.Failed,
			"error", err,
		)
		return report, err
	}
	s.logger.InfoContext(ctx, "sweep completed",
		"tier_id", req.TierID,
		"dispatched", report.Dispatched,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (s *Sweeper) run(ctx context.Context, req Request, dispatched, failed *atomic.Int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var after int64
	remaining := req.Limit
	for {
		pageSize := s.batchSize
		if req.Limit > 0 && remaining < pageSize {
			pageSize = remaining
		}
		if pageSize == 0 {
			break
		}

		ids, err := s.distributors.ListDistributorIDs(gctx, tier.DistributorQuery{
			TierID:  req.TierID,
			AfterID: after,
			Limit:   pageSize,
		})
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("list distributors after %d: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			g.Go(func() error {
				msg := trigger.NewMessage(id, trigger.SourceSweep, "")
				if err := s.publisher.Publish(gctx, msg); err != nil {
					failed.Add(1)
					s.logger.WarnContext(gctx, "failed to dispatch check",
						"distributor_id", id,
						"error", err,
					)
					return nil
				}
				dispatched.Add(1)
				return nil
			})
		}

		after = ids[len(ids)-1]
		remaining -= len(ids)
		if len(ids) < pageSize {
			break
		}
		if err := gctx.Err(); err != nil {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
