package services

import (
	"context"
	"time"

	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"go.uber.org/zap"
)

// Reconciler periodically repairs graph state a partial failure could leave
// behind: edges to deleted users and counters that drifted from their edges.
type Reconciler struct {
	repo     repositories.ReconcileRepository
	interval time.Duration
	logger   *zap.Logger
}

// Report lists what one pass changed, keyed by table or counter
type Report map[string]int64

// Total sums every repair in the report
func (r Report) Total() int64 {
	var n int64
	for _, v := range r {
		n += v
	}
	return n
}

// NewReconciler creates a Reconciler
func NewReconciler(repo repositories.ReconcileRepository, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, interval: interval, logger: logger.Named("reconciler")}
}

// Run repairs once per interval until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Reconciliation pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce removes dangling edges first so the counters are rebuilt from clean tables
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	report := Report{}

	removed, err := r.repo.RemoveDanglingEdges(ctx)
	for k, v := range removed {
		report[k] = v
	}
	if err != nil {
		return report, err
	}

	fixed, err := r.repo.RepairCounters(ctx)
	for k, v := range fixed {
		report[k] = v
	}
	if err != nil {
		return report, err
	}

	for k, v := range report {
		if v > 0 {
			metrics.ReconcileRepairs.WithLabelValues(k).Add(float64(v))
		}
	}
	if total := report.Total(); total > 0 {
		r.logger.Warn("Reconciliation repaired graph state", zap.Any("repairs", map[string]int64(report)))
	} else {
		r.logger.Debug("Reconciliation found nothing to repair")
	}
	return report, nil
}
