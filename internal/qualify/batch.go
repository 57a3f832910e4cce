package qualify

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
)

// BatchSummary counts the outcome of a requalification pass.
type BatchSummary struct {
	Considered  int `json:"considered"`
	Requalified int `json:"requalified"`
	Failed      int `json:"failed"`
	TierChanges int `json:"tier_changes"`
}

// ApplyFunc persists one requalified lead. It receives the lead id and the
// computed result; the callee owns locking and storage.
type ApplyFunc func(ctx context.Context, leadID string, r Result) (changed bool, err error)

// RequalifyStale re-scores every stale lead in parallel, bounded by the
// configured batch concurrency. Individual failures are logged and counted.
func (q *Qualifier) RequalifyStale(ctx context.Context, leads []*model.Lead, now time.Time, apply ApplyFunc) (BatchSummary, error) {
	var sum BatchSummary
	var done, failed, changed atomic.Int64

	limit := q.cfg.BatchConcurrency
	if limit <= 0 {
		limit = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, l := range leads {
		if !q.Stale(l, now) {
			continue
		}
		sum.Considered++
		l := l
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r := q.Qualify(l, now)
			ok, err := apply(gctx, l.ID, r)
			if err != nil {
				failed.Add(1)
				zap.L().Warn("qualify: requalify failed", zap.String("lead_id", l.ID), zap.Error(err))
				return nil
			}
			done.Add(1)
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	sum.Requalified = int(done.Load())
	sum.Failed = int(failed.Load())
	sum.TierChanges = int(changed.Load())
	zap.L().Info("qualify: batch complete",
		zap.Int("considered", sum.Considered),
		zap.Int("requalified", sum.Requalified),
		zap.Int("failed", sum.Failed),
		zap.Int("tier_changes", sum.TierChanges),
	)
	return sum, err
}
