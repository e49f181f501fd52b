package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes entries committed before cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention prunes entries older than MaxAge on a cron schedule.
type Retention struct {
	pruner Pruner
	maxAge time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewRetention(p Pruner, maxAge time.Duration, now func() time.Time) *Retention {
	if now == nil {
		now = time.Now
	}
	return &Retention{
		pruner: p,
		maxAge: maxAge,
		now:    now,
		log:    slog.Default().With("component", "retention"),
	}
}

// PruneOnce deletes everything older than the retention window.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	r.log.Info("journal pruned", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Start schedules PruneOnce with the given cron spec (standard five fields
// or descriptors such as "@daily"). The schedule stops when ctx is done.
func (r *Retention) Start(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := r.PruneOnce(ctx); err != nil {
			r.log.Error("scheduled prune failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse prune schedule %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
