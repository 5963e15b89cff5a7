package graph

import (
	"context"
	"sync"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/util"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// ChapterResult is the outcome of one chapter in a batch. Exactly one of
// Result, Err or Skipped is set.
type ChapterResult struct {
	Index     int
	NovelID   string
	ChapterID string
	Result    *ExtractResult
	Err       error
	Skipped   bool
}

// Failed reports whether the chapter produced no usable graph.
func (r ChapterResult) Failed() bool {
	return r.Err != nil || (r.Result != nil && r.Result.Status == StatusFailed)
}

// BatchReport collects the results of a batch in input order.
type BatchReport struct {
	ID        string
	Results   []ChapterResult
	Started   time.Time
	Finished  time.Time
	Cancelled bool
}

// Counts returns how many chapters completed, failed and were skipped.
func (r BatchReport) Counts() (completed, failed, skipped int) {
	for _, c := range r.Results {
		switch {
		case c.Skipped:
			skipped++
		case c.Failed():
			failed++
		default:
			completed++
		}
	}
	return completed, failed, skipped
}

// Progress returns a progress snapshot at the end of the batch.
func (r BatchReport) Progress() util.BatchProgress {
	completed, failed, skipped := r.Counts()
	return util.BuildBatchProgress(len(r.Results), completed, failed, skipped, r.Started, r.Finished)
}

// BatchScheduler extracts several chapters with a fixed number of workers.
// Each chapter is still extracted sequentially; pacing between oracle calls
// is the oracle's concern (see WithRateLimit).
type BatchScheduler struct {
	client  *GraphClient
	workers int
	lease   LeaseFunc
}

// LeaseFunc runs fn while holding an exclusive lease on a cache key.
type LeaseFunc func(ctx context.Context, cacheKey string, fn func(ctx context.Context) error) error

// NewBatchSchedulerParams configures a BatchScheduler. Lease is optional; when
// set, every chapter is extracted while holding the lease of its cache key.
type NewBatchSchedulerParams struct {
	Client  *GraphClient
	Workers int
	Lease   LeaseFunc
}

func NewBatchScheduler(params NewBatchSchedulerParams) *BatchScheduler {
	workers := params.Workers
	if workers <= 0 {
		workers = 1
	}
	return &BatchScheduler{client: params.Client, workers: workers, lease: params.Lease}
}

func (s *BatchScheduler) extract(ctx context.Context, cfg common.ExtractionConfig) (*ExtractResult, error) {
	if s.lease == nil {
		return s.client.Extract(ctx, cfg)
	}
	key, prepared := s.client.CacheKey(ctx, cfg)
	var res *ExtractResult
	err := s.lease(ctx, key, func(leaseCtx context.Context) error {
		var err error
		res, err = s.client.Extract(leaseCtx, prepared)
		return err
	})
	return res, err
}

// Run extracts every chapter and returns one result per config, in input
// order. onResult, if not nil, is called as each chapter finishes; calls are
// serialized.
//
// After ctx is cancelled, running chapters finish with whatever they have
// extracted and chapters that have not started are reported as skipped.
func (s *BatchScheduler) Run(
	ctx context.Context,
	configs []common.ExtractionConfig,
	onResult func(ChapterResult),
) BatchReport {
	id, err := gonanoid.New()
	if err != nil {
		id = "batch"
	}
	report := BatchReport{
		ID:      id,
		Results: make([]ChapterResult, len(configs)),
		Started: time.Now(),
	}

	var (
		mu   sync.Mutex
		done int
	)
	record := func(r ChapterResult) {
		mu.Lock()
		defer mu.Unlock()
		report.Results[r.Index] = r
		done++
		if onResult != nil {
			onResult(r)
		}
		logger.Debug("[Batch] chapter finished", "batch", id, "done", done, "total", len(configs))
	}

	logger.Info("[Batch] starting", "batch", id, "chapters", len(configs), "workers", s.workers)

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, cfg := range configs {
		base := ChapterResult{Index: i, NovelID: cfg.NovelID, ChapterID: cfg.ChapterID}
		if ctx.Err() != nil {
			base.Skipped = true
			record(base)
			continue
		}
		g.Go(func() error {
			r := base
			if ctx.Err() != nil {
				r.Skipped = true
				record(r)
				return nil
			}
			res, err := s.extract(ctx, cfg)
			if err != nil {
				logger.Error("[Batch] chapter failed", "novel", cfg.NovelID, "chapter", cfg.ChapterID, "err", err)
				r.Err = err
			} else {
				r.Result = res
			}
			record(r)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	report.Cancelled = ctx.Err() != nil
	completed, failed, skipped := report.Counts()
	logger.Info("[Batch] finished",
		"batch", id,
		"completed", completed,
		"failed", failed,
		"skipped", skipped,
		"cancelled", report.Cancelled,
		"duration", report.Finished.Sub(report.Started),
	)
	return report
}
