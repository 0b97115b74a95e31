package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agentbazaar/bazaar/internal/idgen"
	"github.com/agentbazaar/bazaar/internal/retry"
	"github.com/agentbazaar/bazaar/internal/usdc"
)

// AlertConfig defines a transaction alert rule for an agent owner.
type AlertConfig struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	AlertType  string    `json:"alert_type"` // large_payment, execution_failed
	Threshold  string    `json:"threshold,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// Alert represents a triggered alert.
type Alert struct {
	ID            int64     `json:"id"`
	ConfigID      string    `json:"config_id"`
	AgentID       string    `json:"agent_id"`
	AlertType     string    `json:"alert_type"`
	TransactionID string    `json:"transaction_id"`
	Message       string    `json:"message"`
	Acknowledged  bool      `json:"acknowledged"`
	CreatedAt     time.Time `json:"created_at"`
}

// AlertStore persists alert configs and triggered alerts.
type AlertStore interface {
	GetConfigs(ctx context.Context, agentID string) ([]*AlertConfig, error)
	CreateConfig(ctx context.Context, config *AlertConfig) error
	DeleteConfig(ctx context.Context, configID string) error
	CreateAlert(ctx context.Context, alert *Alert) error
	GetAlerts(ctx context.Context, agentID string, limit int) ([]*Alert, error)
}

// AlertChecker evaluates alert rules after a transaction is recorded.
type AlertChecker struct {
	store AlertStore
}

// NewAlertChecker creates a new alert checker.
func NewAlertChecker(store AlertStore) *AlertChecker {
	return &AlertChecker{store: store}
}

// Check evaluates all active alert configs for the transaction's agent.
func (c *AlertChecker) Check(ctx context.Context, tx *Transaction) {
	c.check(ctx, tx, "")
}

// CheckExecutionFailed evaluates only execution_failed configs. Skill
// errors land after the transaction is recorded, and re-running the
// payment rules here would fire them a second time.
func (c *AlertChecker) CheckExecutionFailed(ctx context.Context, tx *Transaction) {
	c.check(ctx, tx, "execution_failed")
}

func (c *AlertChecker) check(ctx context.Context, tx *Transaction, onlyType string) {
	configs, err := c.store.GetConfigs(ctx, tx.AgentID)
	if err != nil || len(configs) == 0 {
		return
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if onlyType != "" && cfg.AlertType != onlyType {
			continue
		}

		var triggered bool
		var message string

		switch cfg.AlertType {
		case "large_payment":
			threshold, ok := usdc.Parse(cfg.Threshold)
			if !ok {
				continue
			}
			amt, _ := usdc.Parse(tx.Amount)
			if amt != nil && amt.Cmp(threshold) >= 0 {
				triggered = true
				message = fmt.Sprintf("Payment of %s USDC meets threshold %s", tx.Amount, cfg.Threshold)
			}
		case "execution_failed":
			if tx.Status == StatusFailed || tx.ErrorMessage != "" {
				triggered = true
				message = fmt.Sprintf("Execution failed for transaction %s: %s", tx.ID, tx.ErrorMessage)
			}
		}

		if triggered {
			alert := &Alert{
				ConfigID:      cfg.ID,
				AgentID:       tx.AgentID,
				AlertType:     cfg.AlertType,
				TransactionID: tx.ID,
				Message:       message,
				CreatedAt:     time.Now(),
			}
			_ = c.store.CreateAlert(ctx, alert)

			// Fire webhook if configured (best-effort, non-blocking)
			if cfg.WebhookURL != "" {
				go fireAlertWebhook(cfg.WebhookURL, alert)
			}
		}
	}
}

func fireAlertWebhook(webhookURL string, alert *Alert) {
	body, err := json.Marshal(alert)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	_ = retry.Do(ctx, 3, time.Second, func() error {
		resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			// A 4xx means the endpoint rejected the payload, so
			// retrying with the same body cannot help.
			return retry.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	})
}

// --- PostgresAlertStore ---

// PostgresAlertStore implements AlertStore with PostgreSQL.
type PostgresAlertStore struct {
	db *sql.DB
}

// NewPostgresAlertStore creates a new PostgreSQL-backed alert store.
func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

func (s *PostgresAlertStore) GetConfigs(ctx context.Context, agentID string) ([]*AlertConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, alert_type, COALESCE(threshold::TEXT, ''), COALESCE(webhook_url, ''), enabled, created_at
		FROM transaction_alert_configs WHERE agent_id = $1 AND enabled = TRUE
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var configs []*AlertConfig
	for rows.Next() {
		c := &AlertConfig{}
		if err := rows.Scan(&c.ID, &c.AgentID, &c.AlertType, &c.Threshold, &c.WebhookURL, &c.Enabled, &c.CreatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *PostgresAlertStore) CreateConfig(ctx context.Context, config *AlertConfig) error {
	if config.ID == "" {
		config.ID = idgen.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_alert_configs (id, agent_id, alert_type, threshold, webhook_url, enabled, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::NUMERIC(20,6), $5, $6, NOW())
	`, config.ID, config.AgentID, config.AlertType, config.Threshold, config.WebhookURL, config.Enabled)
	return err
}

func (s *PostgresAlertStore) DeleteConfig(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_alert_configs SET enabled = FALSE WHERE id = $1
	`, configID)
	return err
}

func (s *PostgresAlertStore) CreateAlert(ctx context.Context, alert *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_alerts (config_id, agent_id, alert_type, transaction_id, message, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
	`, alert.ConfigID, alert.AgentID, alert.AlertType, alert.TransactionID, alert.Message)
	return err
}

func (s *PostgresAlertStore) GetAlerts(ctx context.Context, agentID string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_id, agent_id, alert_type, COALESCE(transaction_id, ''), COALESCE(message, ''), acknowledged, created_at
		FROM transaction_alerts WHERE agent_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var alerts []*Alert
	for rows.Next() {
		a := &Alert{}
		if err := rows.Scan(&a.ID, &a.ConfigID, &a.AgentID, &a.AlertType, &a.TransactionID, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// --- MemoryAlertStore ---

// MemoryAlertStore implements AlertStore for demo/testing.
type MemoryAlertStore struct {
	configs []*AlertConfig
	alerts  []*Alert
	nextID  int64
	mu      sync.RWMutex
}

// NewMemoryAlertStore creates an in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) GetConfigs(_ context.Context, agentID string) ([]*AlertConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*AlertConfig
	for _, c := range s.configs {
		if c.AgentID == agentID && c.Enabled {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryAlertStore) CreateConfig(_ context.Context, config *AlertConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.ID == "" {
		config.ID = idgen.New()
	}
	cp := *config
	cp.Enabled = true
	cp.CreatedAt = time.Now()
	s.configs = append(s.configs, &cp)
	return nil
}

func (s *MemoryAlertStore) DeleteConfig(_ context.Context, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configs {
		if c.ID == configID {
			c.Enabled = false
			return nil
		}
	}
	return nil
}

func (s *MemoryAlertStore) CreateAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := *alert
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryAlertStore) GetAlerts(_ context.Context, agentID string, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var result []*Alert
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if s.alerts[i].AgentID == agentID {
			cp := *s.alerts[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Alerts returns all stored alerts (for testing).
func (s *MemoryAlertStore) Alerts() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Alert, len(s.alerts))
	copy(result, s.alerts)
	return result
}
