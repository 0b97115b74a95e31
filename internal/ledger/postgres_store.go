package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the transactions table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id              VARCHAR(36) PRIMARY KEY,
			agent_id        VARCHAR(36) NOT NULL,
			user_id         VARCHAR(64) NOT NULL,
			amount          NUMERIC(20,6) NOT NULL,
			currency        VARCHAR(10) NOT NULL DEFAULT 'USDC',
			status          VARCHAR(20) NOT NULL DEFAULT 'pending',
			receipt         JSONB,
			tx_hash         VARCHAR(66) UNIQUE,
			input_data      JSONB,
			output_data     JSONB,
			error_message   TEXT,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_amount_positive CHECK (amount > 0),
			CONSTRAINT chk_status CHECK (status IN ('pending', 'completed', 'failed', 'refunded'))
		);

		CREATE INDEX IF NOT EXISTS idx_tx_agent ON transactions(agent_id);
		CREATE INDEX IF NOT EXISTS idx_tx_user ON transactions(user_id);
		CREATE INDEX IF NOT EXISTS idx_tx_created ON transactions(created_at DESC);
	`)
	return err
}

func (p *PostgresStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	var receiptJSON, inputJSON []byte
	var txHash sql.NullString
	var err error

	if tx.Receipt != nil {
		receiptJSON, err = json.Marshal(tx.Receipt)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		if tx.Receipt.BlockchainTxHash != "" {
			txHash = sql.NullString{String: strings.ToLower(tx.Receipt.BlockchainTxHash), Valid: true}
		}
	}
	if tx.InputData != nil {
		inputJSON, err = json.Marshal(tx.InputData)
		if err != nil {
			return fmt.Errorf("marshal input data: %w", err)
		}
	}

	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, agent_id, user_id, amount, currency, status, receipt, tx_hash, input_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5, $6, $7, $8, $9, $10, $10)
	`, tx.ID, tx.AgentID, tx.UserID, tx.Amount, tx.Currency, tx.Status,
		nullJSON(receiptJSON), txHash, nullJSON(inputJSON), now)
	if err != nil {
		// Unique violation on tx_hash means a replayed receipt
		if strings.Contains(err.Error(), "transactions_tx_hash_key") {
			return ErrDuplicateTxHash
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, amount, currency, status,
		       COALESCE(receipt::TEXT, ''), COALESCE(input_data::TEXT, ''),
		       COALESCE(output_data::TEXT, ''), COALESCE(error_message, ''),
		       created_at, updated_at
		FROM transactions WHERE id = $1
	`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) ListTransactions(ctx context.Context, q Query) ([]*Transaction, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.AgentID != "" {
		where = append(where, "agent_id = "+arg(q.AgentID))
	}
	if q.UserID != "" {
		where = append(where, "user_id = "+arg(q.UserID))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(q.Status))
	}
	if !q.Before.IsZero() {
		where = append(where, "(created_at, id) < ("+arg(q.Before)+", "+arg(q.BeforeID)+")")
	}

	query := `
		SELECT id, agent_id, user_id, amount, currency, status,
		       COALESCE(receipt::TEXT, ''), COALESCE(input_data::TEXT, ''),
		       COALESCE(output_data::TEXT, ''), COALESCE(error_message, ''),
		       created_at, updated_at
		FROM transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg(q.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, tx)
	}
	return results, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id, status, errorMessage string) error {
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET
			status = $2,
			error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
			updated_at = NOW()
		WHERE id = $1
	`, id, status, errorMessage)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (p *PostgresStore) AttachOutput(ctx context.Context, id string, output map[string]any) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET output_data = $2::JSONB, updated_at = NOW() WHERE id = $1
	`, id, string(data))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (p *PostgresStore) AttachError(ctx context.Context, id, message string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET error_message = $2, updated_at = NOW() WHERE id = $1
	`, id, message)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (p *PostgresStore) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_hash = $1)
	`, strings.ToLower(txHash)).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var volume sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)::TEXT
		FROM transactions
	`).Scan(&stats.TotalTransactions, &stats.CompletedCount, &stats.FailedCount, &stats.PendingCount, &volume)
	if err != nil {
		return nil, err
	}
	stats.TotalVolume = volume.String
	stats.TotalRevenue = revenueOf(stats.TotalVolume)
	return stats, nil
}

// scanner abstracts sql.Row and sql.Rows for scanTransaction.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	tx := &Transaction{}
	var receiptRaw, inputRaw, outputRaw string
	err := row.Scan(&tx.ID, &tx.AgentID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Status,
		&receiptRaw, &inputRaw, &outputRaw, &tx.ErrorMessage, &tx.CreatedAt, &tx.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if receiptRaw != "" {
		r := &Receipt{}
		if err := json.Unmarshal([]byte(receiptRaw), r); err == nil {
			tx.Receipt = r
		}
	}
	if inputRaw != "" {
		_ = json.Unmarshal([]byte(inputRaw), &tx.InputData)
	}
	if outputRaw != "" {
		_ = json.Unmarshal([]byte(outputRaw), &tx.OutputData)
	}
	return tx, nil
}

// nullJSON converts empty marshaled JSON to NULL for JSONB columns.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
