// Package admin provides operator-only endpoints: platform stats,
// transaction oversight, refunds, and on-demand reconciliation.
package admin

import (
	"context"

	"github.com/agentbazaar/bazaar/internal/ledger"
	"github.com/agentbazaar/bazaar/internal/reconciliation"
)

// StatsProvider aggregates platform activity.
type StatsProvider interface {
	Stats(ctx context.Context) (*ledger.Stats, error)
}

// TransactionLister lists transactions for oversight.
type TransactionLister interface {
	List(ctx context.Context, q ledger.Query) ([]*ledger.Transaction, error)
}

// Reconciler runs an on-demand chain-versus-ledger check.
type Reconciler interface {
	Reconcile(ctx context.Context) (*reconciliation.Result, error)
}

// AlertReader lists triggered transaction alerts.
type AlertReader interface {
	GetAlerts(ctx context.Context, agentID string, limit int) ([]*ledger.Alert, error)
}
