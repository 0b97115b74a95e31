package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentbazaar/bazaar/internal/idgen"
	"github.com/agentbazaar/bazaar/internal/usdc"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store defines the persistence interface for the catalog.
type Store interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentBySlug(ctx context.Context, slug string) (*Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	ListAgents(ctx context.Context, query AgentQuery) ([]*Agent, error)
	SetStatus(ctx context.Context, slug, status string) error
	RecordExecution(ctx context.Context, id string) error
	DeleteAgent(ctx context.Context, slug string) error
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent // id -> agent
	slugs  map[string]string // slug -> id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]*Agent),
		slugs:  make(map[string]string),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slug := strings.ToLower(agent.Slug)
	if _, exists := m.slugs[slug]; exists {
		return ErrSlugTaken
	}

	if agent.ID == "" {
		agent.ID = idgen.WithPrefix("agt_")
	}
	agent.Slug = slug
	if agent.Status == "" {
		agent.Status = StatusOnline
	}
	if agent.Pricing.Currency == "" {
		agent.Pricing.Currency = "USDC"
	}
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = time.Now()

	cp := *agent
	m.agents[agent.ID] = &cp
	m.slugs[slug] = agent.ID
	return nil
}

func (m *MemoryStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, exists := m.agents[id]
	if !exists {
		return nil, ErrAgentNotFound
	}
	cp := *agent
	return &cp, nil
}

func (m *MemoryStore) GetAgentBySlug(ctx context.Context, slug string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.slugs[strings.ToLower(slug)]
	if !exists {
		return nil, ErrAgentNotFound
	}
	cp := *m.agents[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.agents[agent.ID]
	if !exists {
		return ErrAgentNotFound
	}

	agent.Slug = existing.Slug // slug is immutable
	agent.CreatedAt = existing.CreatedAt
	agent.UpdatedAt = time.Now()
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *MemoryStore) ListAgents(ctx context.Context, query AgentQuery) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if query.Limit <= 0 {
		query.Limit = 50
	}

	var results []*Agent
	for _, agent := range m.agents {
		if !matchesQuery(agent, query) {
			continue
		}
		cp := *agent
		results = append(results, &cp)
	}

	sortAgents(results, query.Sort)

	if query.Offset >= len(results) {
		return []*Agent{}, nil
	}
	end := query.Offset + query.Limit
	if end > len(results) {
		end = len(results)
	}
	return results[query.Offset:end], nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, slug, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.slugs[strings.ToLower(slug)]
	if !exists {
		return ErrAgentNotFound
	}
	if !IsValidAgentStatus(status) {
		return ErrInvalidStatus
	}
	m.agents[id].Status = status
	m.agents[id].UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) RecordExecution(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, exists := m.agents[id]
	if !exists {
		return ErrAgentNotFound
	}
	agent.TotalExecutions++
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteAgent(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(slug)
	id, exists := m.slugs[key]
	if !exists {
		return ErrAgentNotFound
	}
	delete(m.agents, id)
	delete(m.slugs, key)
	return nil
}

// -----------------------------------------------------------------------------
// Query helpers (shared by store implementations)
// -----------------------------------------------------------------------------

func matchesQuery(agent *Agent, query AgentQuery) bool {
	if query.Category != "" && agent.Category != query.Category {
		return false
	}
	if query.Status != "" && agent.Status != query.Status {
		return false
	}
	if query.Search != "" {
		needle := strings.ToLower(query.Search)
		if !strings.Contains(strings.ToLower(agent.Name), needle) &&
			!strings.Contains(strings.ToLower(agent.Description), needle) {
			return false
		}
	}
	if query.MaxPrice != "" {
		maxAmount, ok1 := usdc.Parse(query.MaxPrice)
		price, ok2 := usdc.Parse(agent.Pricing.PerTask)
		if ok1 && ok2 && price.Cmp(maxAmount) > 0 {
			return false
		}
	}
	return true
}

func sortAgents(agents []*Agent, by string) {
	switch by {
	case "executions":
		sort.Slice(agents, func(i, j int) bool {
			return agents[i].TotalExecutions > agents[j].TotalExecutions
		})
	case "price":
		sort.Slice(agents, func(i, j int) bool {
			pi, _ := usdc.Parse(agents[i].Pricing.PerTask)
			pj, _ := usdc.Parse(agents[j].Pricing.PerTask)
			if pi == nil || pj == nil {
				return false
			}
			return pi.Cmp(pj) < 0
		})
	default: // rating
		sort.Slice(agents, func(i, j int) bool {
			if agents[i].Rating == agents[j].Rating {
				return agents[i].TotalExecutions > agents[j].TotalExecutions
			}
			return agents[i].Rating > agents[j].Rating
		})
	}
}
