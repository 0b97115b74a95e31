package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentbazaar/bazaar/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the agents table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id               VARCHAR(36) PRIMARY KEY,
			slug             VARCHAR(64) NOT NULL UNIQUE,
			name             VARCHAR(255) NOT NULL,
			description      TEXT,
			category         VARCHAR(32) NOT NULL,
			capabilities     JSONB,
			price_per_task   NUMERIC(20,6) NOT NULL,
			currency         VARCHAR(10) NOT NULL DEFAULT 'USDC',
			rating           DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_executions BIGINT NOT NULL DEFAULT 0,
			status           VARCHAR(20) NOT NULL DEFAULT 'online',
			avatar_url       TEXT,
			owner_id         VARCHAR(64),
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			updated_at       TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_price_positive CHECK (price_per_task > 0),
			CONSTRAINT chk_agent_status CHECK (status IN ('online', 'offline', 'maintenance'))
		);

		CREATE INDEX IF NOT EXISTS idx_agents_category ON agents(category);
		CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	`)
	return err
}

func (p *PostgresStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = idgen.WithPrefix("agt_")
	}
	agent.Slug = strings.ToLower(agent.Slug)
	if agent.Status == "" {
		agent.Status = StatusOnline
	}
	if agent.Pricing.Currency == "" {
		agent.Pricing.Currency = "USDC"
	}
	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO agents (id, slug, name, description, category, capabilities,
			price_per_task, currency, rating, total_executions, status, avatar_url, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::JSONB, $7::NUMERIC(20,6), $8, $9, $10, $11, $12, $13, $14, $14)
	`, agent.ID, agent.Slug, agent.Name, agent.Description, agent.Category, string(caps),
		agent.Pricing.PerTask, agent.Pricing.Currency, agent.Rating, agent.TotalExecutions,
		agent.Status, agent.AvatarURL, agent.OwnerID, now)
	if err != nil {
		if strings.Contains(err.Error(), "agents_slug_key") {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

const agentColumns = `id, slug, name, COALESCE(description, ''), category,
	COALESCE(capabilities::TEXT, '[]'), price_per_task, currency, rating,
	total_executions, status, COALESCE(avatar_url, ''), COALESCE(owner_id, ''),
	created_at, updated_at`

func (p *PostgresStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (p *PostgresStore) GetAgentBySlug(ctx context.Context, slug string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE slug = $1`, strings.ToLower(slug))
	return scanAgent(row)
}

func (p *PostgresStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE agents SET
			name = $2, description = $3, category = $4, capabilities = $5::JSONB,
			price_per_task = $6::NUMERIC(20,6), rating = $7, status = $8,
			avatar_url = $9, updated_at = NOW()
		WHERE id = $1
	`, agent.ID, agent.Name, agent.Description, agent.Category, string(caps),
		agent.Pricing.PerTask, agent.Rating, agent.Status, agent.AvatarURL)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (p *PostgresStore) ListAgents(ctx context.Context, q AgentQuery) ([]*Agent, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Category != "" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(q.Status))
	}
	if q.Search != "" {
		ph := arg("%" + q.Search + "%")
		where = append(where, "(name ILIKE "+ph+" OR description ILIKE "+ph+")")
	}
	if q.MaxPrice != "" {
		where = append(where, "price_per_task <= "+arg(q.MaxPrice)+"::NUMERIC(20,6)")
	}

	order := "rating DESC, total_executions DESC"
	switch q.Sort {
	case "executions":
		order = "total_executions DESC"
	case "price":
		order = "price_per_task ASC"
	}

	query := `SELECT ` + agentColumns + ` FROM agents
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + order + `
		LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg(q.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, agent)
	}
	return results, rows.Err()
}

func (p *PostgresStore) SetStatus(ctx context.Context, slug, status string) error {
	if !IsValidAgentStatus(status) {
		return ErrInvalidStatus
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE agents SET status = $2, updated_at = NOW() WHERE slug = $1
	`, strings.ToLower(slug), status)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (p *PostgresStore) RecordExecution(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE agents SET total_executions = total_executions + 1, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteAgent(ctx context.Context, slug string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM agents WHERE slug = $1`, strings.ToLower(slug))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*Agent, error) {
	agent := &Agent{}
	var capsRaw string
	err := row.Scan(&agent.ID, &agent.Slug, &agent.Name, &agent.Description, &agent.Category,
		&capsRaw, &agent.Pricing.PerTask, &agent.Pricing.Currency, &agent.Rating,
		&agent.TotalExecutions, &agent.Status, &agent.AvatarURL, &agent.OwnerID,
		&agent.CreatedAt, &agent.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	if capsRaw != "" {
		_ = json.Unmarshal([]byte(capsRaw), &agent.Capabilities)
	}
	return agent, nil
}
