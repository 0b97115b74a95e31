// Package ledger records marketplace transactions.
//
// Flow:
//  1. Buyer pays the platform wallet in USDC on Polygon
//  2. The payment orchestrator creates a transaction with the chain receipt
//  3. The invoked skill attaches its output (or error) to the record
//  4. Admin stats aggregate volume and the 7% platform fee
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentbazaar/bazaar/internal/idgen"
	"github.com/agentbazaar/bazaar/internal/metrics"
	"github.com/agentbazaar/bazaar/internal/usdc"
)

var (
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	ErrDuplicateTxHash     = errors.New("ledger: tx hash already recorded")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrInvalidStatus       = errors.New("ledger: invalid status")
)

// Transaction statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// ValidStatus reports whether s is a known transaction status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Receipt is the settlement proof attached to a completed payment.
type Receipt struct {
	Timestamp        time.Time `json:"timestamp"`
	Protocol         string    `json:"protocol"`   // always "AP2"
	Settlement       string    `json:"settlement"` // always "instant"
	BlockchainTxHash string    `json:"blockchain_tx_hash"`
	Network          string    `json:"network"` // always "Polygon"
}

// Receipt constants
const (
	ReceiptProtocol   = "AP2"
	ReceiptSettlement = "instant"
	ReceiptNetwork    = "Polygon"
)

// NewReceipt builds the canonical receipt for a confirmed transfer.
func NewReceipt(txHash string) *Receipt {
	return &Receipt{
		Timestamp:        time.Now().UTC(),
		Protocol:         ReceiptProtocol,
		Settlement:       ReceiptSettlement,
		BlockchainTxHash: txHash,
		Network:          ReceiptNetwork,
	}
}

// Transaction is a paid agent execution recorded on the platform.
type Transaction struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agent_id"`
	UserID       string         `json:"user_id"`
	Amount       string         `json:"amount"` // total charged, USDC
	Currency     string         `json:"currency"`
	Status       string         `json:"status"`
	Receipt      *Receipt       `json:"receipt,omitempty"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Query filters transaction listings.
type Query struct {
	AgentID string
	UserID  string
	Status  string
	Limit   int
	Offset  int

	// Cursor position: only transactions strictly older than
	// (Before, BeforeID) are returned. Zero value means no cursor.
	Before   time.Time
	BeforeID string
}

// Stats aggregates platform activity for the admin dashboard.
type Stats struct {
	TotalTransactions int64  `json:"total_transactions"`
	TotalVolume       string `json:"total_volume"`  // sum of completed amounts, USDC
	TotalRevenue      string `json:"total_revenue"` // platform's 7% cut of volume
	CompletedCount    int64  `json:"completed"`
	FailedCount       int64  `json:"failed"`
	PendingCount      int64  `json:"pending"`
}

// Store persists transactions.
type Store interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, q Query) ([]*Transaction, error)
	UpdateStatus(ctx context.Context, id, status, errorMessage string) error
	AttachOutput(ctx context.Context, id string, output map[string]any) error
	AttachError(ctx context.Context, id, message string) error
	HasTxHash(ctx context.Context, txHash string) (bool, error)
	GetStats(ctx context.Context) (*Stats, error)
}

// EventSink receives a notification for every recorded transaction.
// Implementations must not block.
type EventSink interface {
	TransactionRecorded(tx *Transaction)
}

// Ledger manages transaction records.
type Ledger struct {
	store  Store
	alerts *AlertChecker // optional
	events EventSink     // optional
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// WithAlerts attaches an alert checker evaluated after each record and
// after a skill error lands on an existing record.
func (l *Ledger) WithAlerts(checker *AlertChecker) *Ledger {
	l.alerts = checker
	return l
}

// WithEvents attaches a sink notified after each successful record.
func (l *Ledger) WithEvents(sink EventSink) *Ledger {
	l.events = sink
	return l
}

// Record validates and persists a new transaction. The receipt's tx hash
// is the idempotency key: a hash that was already recorded is rejected
// with ErrDuplicateTxHash so a replayed confirmation cannot double-bill.
func (l *Ledger) Record(ctx context.Context, tx *Transaction) error {
	defer observeOp("record")()

	amt, ok := usdc.Parse(tx.Amount)
	if !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tx.Amount = usdc.Format(amt)

	if tx.Status == "" {
		tx.Status = StatusCompleted
	}
	if !ValidStatus(tx.Status) {
		return ErrInvalidStatus
	}

	if tx.Receipt != nil && tx.Receipt.BlockchainTxHash != "" {
		exists, err := l.store.HasTxHash(ctx, strings.ToLower(tx.Receipt.BlockchainTxHash))
		if err != nil {
			return err
		}
		if exists {
			LedgerDuplicatesTotal.Inc()
			return ErrDuplicateTxHash
		}
	}

	if tx.ID == "" {
		tx.ID = idgen.WithPrefix("tx_")
	}
	if tx.Currency == "" {
		tx.Currency = "USDC"
	}

	if err := l.store.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateTxHash) {
			LedgerDuplicatesTotal.Inc()
		}
		return err
	}

	metrics.TransactionsTotal.WithLabelValues(tx.Status).Inc()
	if l.alerts != nil {
		l.alerts.Check(ctx, tx)
	}
	if l.events != nil {
		l.events.TransactionRecorded(tx)
	}
	return nil
}

// Get returns one transaction by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Transaction, error) {
	defer observeOp("get")()
	return l.store.GetTransaction(ctx, id)
}

// List returns transactions matching the query, newest first.
func (l *Ledger) List(ctx context.Context, q Query) ([]*Transaction, error) {
	defer observeOp("list")()
	if q.Limit <= 0 {
		q.Limit = 50
	}
	return l.store.ListTransactions(ctx, q)
}

// AttachOutput stores a skill's output on the transaction record.
func (l *Ledger) AttachOutput(ctx context.Context, id string, output map[string]any) error {
	defer observeOp("attach_output")()
	return l.store.AttachOutput(ctx, id, output)
}

// AttachError stores a skill's error message on the transaction record.
// The transaction stays in its payment status: the buyer paid even if
// the execution failed, and refunds are a manual admin action.
// Execution-failed alert rules are evaluated here, since the error
// arrives after Record already ran its checks.
func (l *Ledger) AttachError(ctx context.Context, id, message string) error {
	defer observeOp("attach_error")()
	if err := l.store.AttachError(ctx, id, message); err != nil {
		return err
	}
	if l.alerts != nil {
		if tx, err := l.store.GetTransaction(ctx, id); err == nil {
			l.alerts.CheckExecutionFailed(ctx, tx)
		}
	}
	return nil
}

// MarkRefunded flags a transaction as refunded (admin action).
func (l *Ledger) MarkRefunded(ctx context.Context, id, reason string) error {
	defer observeOp("refund")()
	return l.store.UpdateStatus(ctx, id, StatusRefunded, reason)
}

// Stats returns aggregate platform stats.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	defer observeOp("stats")()
	return l.store.GetStats(ctx)
}

// revenueOf derives the platform's cut from completed volume.
// Revenue is reported as volume * 7%, matching the fee schedule.
func revenueOf(volume string) string {
	vol, ok := usdc.Parse(volume)
	if !ok {
		return "0.000000"
	}
	return usdc.Format(usdc.Fee(vol))
}
