package ledger

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentbazaar/bazaar/internal/usdc"
)

// MemoryStore is an in-memory transaction store for demo/development mode.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*Transaction
	txHashes     map[string]bool
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*Transaction),
		txHashes:     make(map[string]bool),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	m.transactions[tx.ID] = cloneTransaction(tx)

	if tx.Receipt != nil && tx.Receipt.BlockchainTxHash != "" {
		m.txHashes[strings.ToLower(tx.Receipt.BlockchainTxHash)] = true
	}
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, q Query) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if q.Limit <= 0 {
		q.Limit = 50
	}

	results := make([]*Transaction, 0)
	for _, tx := range m.transactions {
		if q.AgentID != "" && tx.AgentID != q.AgentID {
			continue
		}
		if q.UserID != "" && tx.UserID != q.UserID {
			continue
		}
		if q.Status != "" && tx.Status != q.Status {
			continue
		}
		if !q.Before.IsZero() {
			if tx.CreatedAt.After(q.Before) {
				continue
			}
			if tx.CreatedAt.Equal(q.Before) && tx.ID >= q.BeforeID {
				continue
			}
		}
		results = append(results, cloneTransaction(tx))
	}

	// Newest first, id breaks created-at ties so cursors are stable
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if q.Offset >= len(results) {
		return []*Transaction{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(results) {
		end = len(results)
	}
	return results[q.Offset:end], nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id, status, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	tx.Status = status
	if errorMessage != "" {
		tx.ErrorMessage = errorMessage
	}
	tx.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AttachOutput(ctx context.Context, id string, output map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.OutputData = output
	tx.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AttachError(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.ErrorMessage = message
	tx.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.txHashes[strings.ToLower(txHash)], nil
}

func (m *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	volume := big.NewInt(0)
	for _, tx := range m.transactions {
		stats.TotalTransactions++
		switch tx.Status {
		case StatusCompleted:
			stats.CompletedCount++
			if amt, ok := usdc.Parse(tx.Amount); ok {
				volume.Add(volume, amt)
			}
		case StatusFailed:
			stats.FailedCount++
		case StatusPending:
			stats.PendingCount++
		}
	}
	stats.TotalVolume = usdc.Format(volume)
	stats.TotalRevenue = revenueOf(stats.TotalVolume)
	return stats, nil
}

func cloneTransaction(tx *Transaction) *Transaction {
	cp := *tx
	if tx.Receipt != nil {
		r := *tx.Receipt
		cp.Receipt = &r
	}
	if tx.InputData != nil {
		cp.InputData = make(map[string]any, len(tx.InputData))
		for k, v := range tx.InputData {
			cp.InputData[k] = v
		}
	}
	if tx.OutputData != nil {
		cp.OutputData = make(map[string]any, len(tx.OutputData))
		for k, v := range tx.OutputData {
			cp.OutputData[k] = v
		}
	}
	return &cp
}
