// Package scheduler runs background maintenance over the transfer ledger.
package scheduler

import (
	"context"
	"time"

	"tumapesa/internal/domain"
	"tumapesa/internal/transfer"
	"tumapesa/pkg/logger"
)

// StuckFinder surfaces transactions stranded in a non-terminal status.
type StuckFinder interface {
	FindStuck(ctx context.Context, olderThanSeconds, limit int) ([]domain.Transaction, error)
}

// Reaper periodically resolves transfers stranded by a crash or restart so
// no transaction stays in flight forever. The transfer service consults the
// gateway and the payout rail before deciding between delivery and a
// fail-with-refund.
type Reaper struct {
	finder    StuckFinder
	transfers *transfer.Service
	interval  time.Duration
	maxAge    time.Duration
	logger    logger.Logger
	stop      chan struct{}
}

func NewReaper(finder StuckFinder, transfers *transfer.Service, interval, maxAge time.Duration, log logger.Logger) *Reaper {
	return &Reaper{
		finder:    finder,
		transfers: transfers,
		interval:  interval,
		maxAge:    maxAge,
		logger:    log,
		stop:      make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
	r.logger.Info("Stuck transfer reaper started", map[string]interface{}{
		"interval": r.interval.String(),
		"max_age":  r.maxAge.String(),
	})
}

func (r *Reaper) Stop() {
	close(r.stop)
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stuck, err := r.finder.FindStuck(ctx, int(r.maxAge.Seconds()), 100)
	if err != nil {
		r.logger.Error("Stuck transfer sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for i := range stuck {
		tx := stuck[i]
		if err := r.transfers.ResolveAbandoned(ctx, &tx, "abandoned after restart"); err != nil {
			r.logger.Error("Failed to resolve stuck transfer, will retry next sweep", map[string]interface{}{
				"transaction_id": tx.ID,
				"error":          err.Error(),
			})
			continue
		}
		r.logger.Warn("Stuck transfer resolved by reaper", map[string]interface{}{
			"transaction_id": tx.ID,
			"status":         tx.Status,
		})
	}
}
