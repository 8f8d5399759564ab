// Package retention deletes recorded interactions once they age past a
// configured limit.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is how often the pruner runs when no interval is given.
const DefaultInterval = time.Hour

// InteractionPruner abstracts the storage operation the pruner needs.
type InteractionPruner interface {
	PruneInteractions(cutoff time.Time) (int64, error)
}

// Pruner periodically removes interactions older than maxAge.
type Pruner struct {
	store    InteractionPruner
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewPruner creates a Pruner. If interval is <= 0 it defaults to
// DefaultInterval.
func NewPruner(store InteractionPruner, maxAge, interval time.Duration, logger *slog.Logger) *Pruner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run prunes once immediately and then every interval until ctx is
// cancelled.
func (p *Pruner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.RunOnce(); err != nil {
			p.logger.Error("retention pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// RunOnce deletes interactions older than maxAge and returns how many were
// removed. A non-positive maxAge keeps everything.
func (p *Pruner) RunOnce() (int64, error) {
	if p.maxAge <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.store.PruneInteractions(cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning interactions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		p.logger.Info("pruned old interactions", "count", n, "max_age", p.maxAge.String())
	}
	return n, nil
}
