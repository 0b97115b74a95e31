package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// defaultInterval is how often the ledger is compared against the
// platform wallet balance. Admins can trigger an extra run at any time
// through POST /admin/reconcile.
const defaultInterval = time.Hour

// Timer drives periodic reconciliation runs.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer returns a timer on the default hourly cadence.
func NewTimer(service *Service, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		interval: defaultInterval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start runs the loop until ctx is cancelled or Stop is called. Call in
// a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.run(ctx)
		}
	}
}

// Stop asks the loop to exit. Safe to call when the loop never started.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

// run executes one reconciliation pass. A panic in the service must not
// take down the whole server, so it is caught and logged here.
func (t *Timer) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in reconciliation timer", "panic", fmt.Sprint(r))
		}
	}()

	result, err := t.service.Reconcile(ctx)
	if err != nil {
		t.logger.Warn("reconciliation run failed", "error", err)
		return
	}
	if !result.Match {
		t.logger.Warn("ledger drift exceeds threshold",
			"chain_balance", result.ChainBalance,
			"ledger_volume", result.LedgerVolume,
			"diff", result.Diff)
	}
}
