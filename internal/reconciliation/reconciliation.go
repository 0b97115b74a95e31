// Package reconciliation checks the platform wallet's on-chain USDC
// balance against the volume the ledger says buyers have paid.
package reconciliation

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/agentbazaar/bazaar/internal/usdc"
)

// VolumeSummer reports the total completed payment volume in the ledger.
type VolumeSummer interface {
	CompletedVolume(ctx context.Context) (string, error)
}

// ChainBalanceProvider returns the platform wallet's on-chain USDC balance.
type ChainBalanceProvider interface {
	PlatformUSDCBalance(ctx context.Context) (*big.Int, error)
}

// Result holds the outcome of one reconciliation run.
type Result struct {
	Match         bool      `json:"match"`
	ChainBalance  string    `json:"chain_balance"`
	LedgerVolume  string    `json:"ledger_volume"`
	Diff          string    `json:"diff"`
	Threshold     string    `json:"threshold"`
	Duration      float64   `json:"duration_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service compares ledger totals with on-chain state.
type Service struct {
	summer         VolumeSummer
	chain          ChainBalanceProvider
	alertThreshold *big.Int // in USDC smallest units; default $1 = 1_000_000
}

// NewService creates a reconciliation service
func NewService(summer VolumeSummer, chain ChainBalanceProvider) *Service {
	threshold, _ := usdc.Parse("1.000000")
	return &Service{
		summer:         summer,
		chain:          chain,
		alertThreshold: threshold,
	}
}

// SetAlertThreshold sets the drift above which runs are flagged.
func (s *Service) SetAlertThreshold(amount string) {
	if t, ok := usdc.Parse(amount); ok {
		s.alertThreshold = t
	}
}

// Reconcile compares completed ledger volume against the platform
// wallet's USDC balance. The diff is chain minus ledger: payouts and
// gas top-ups pull it negative, unrecorded transfers push it positive.
func (s *Service) Reconcile(ctx context.Context) (*Result, error) {
	start := time.Now()

	volumeStr, err := s.summer.CompletedVolume(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum ledger volume: %w", err)
	}
	volume, ok := usdc.Parse(volumeStr)
	if !ok {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("ledger returned unparseable volume %q", volumeStr)
	}

	chainBal, err := s.chain.PlatformUSDCBalance(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to get on-chain balance: %w", err)
	}

	diff := new(big.Int).Sub(chainBal, volume)
	absDiff := new(big.Int).Abs(diff)
	match := absDiff.Cmp(s.alertThreshold) <= 0

	elapsed := time.Since(start)
	reconcileDuration.Observe(elapsed.Seconds())
	reconcileDriftUSDC.Set(usdcFloat(diff))
	if match {
		reconcileMismatch.Set(0)
	} else {
		reconcileMismatch.Set(1)
	}

	return &Result{
		Match:        match,
		ChainBalance: usdc.Format(chainBal),
		LedgerVolume: usdc.Format(volume),
		Diff:         usdc.Format(diff),
		Threshold:    usdc.Format(s.alertThreshold),
		Duration:     elapsed.Seconds(),
		Timestamp:    time.Now().UTC(),
	}, nil
}

func usdcFloat(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(1e6)).Float64()
	return f
}
