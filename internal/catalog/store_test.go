package catalog

import (
	"context"
	"strings"
	"testing"
)

func newAgent(slug, category, price string) *Agent {
	return &Agent{
		Slug:     slug,
		Name:     strings.ReplaceAll(slug, "-", " "),
		Category: category,
		Pricing:  Pricing{PerTask: price},
	}
}

func TestMemoryStore_CreateAgent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	agent := newAgent("neural-artist", CategoryCreative, "0.050000")
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.ID == "" || !strings.HasPrefix(agent.ID, "agt_") {
		t.Errorf("expected agt_ id, got %q", agent.ID)
	}
	if agent.Status != StatusOnline {
		t.Errorf("expected default status online, got %q", agent.Status)
	}
	if agent.Pricing.Currency != "USDC" {
		t.Errorf("expected default currency USDC, got %q", agent.Pricing.Currency)
	}

	got, err := store.GetAgentBySlug(ctx, "neural-artist")
	if err != nil {
		t.Fatalf("GetAgentBySlug: %v", err)
	}
	if got.ID != agent.ID {
		t.Errorf("lookup mismatch: %q vs %q", got.ID, agent.ID)
	}
}

func TestMemoryStore_SlugTaken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAgent(ctx, newAgent("neural-artist", CategoryCreative, "0.050000")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	err := store.CreateAgent(ctx, newAgent("Neural-Artist", CategoryCreative, "0.050000"))
	if err != ErrSlugTaken {
		t.Errorf("expected ErrSlugTaken for case-variant slug, got %v", err)
	}
}

func TestMemoryStore_ListAgents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seed := []*Agent{
		newAgent("neural-artist", CategoryCreative, "0.050000"),
		newAgent("nft-metamind", CategoryBlockchain, "0.020000"),
		newAgent("pinata-express", CategoryStorage, "0.010000"),
	}
	seed[0].Rating = 4.8
	seed[1].Rating = 4.6
	seed[2].Rating = 4.9
	for _, a := range seed {
		if err := store.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent %s: %v", a.Slug, err)
		}
	}
	if err := store.SetStatus(ctx, "pinata-express", StatusMaintenance); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	tests := []struct {
		name  string
		query AgentQuery
		want  []string
	}{
		{"all by rating", AgentQuery{}, []string{"pinata-express", "neural-artist", "nft-metamind"}},
		{"by category", AgentQuery{Category: CategoryBlockchain}, []string{"nft-metamind"}},
		{"online only", AgentQuery{Status: StatusOnline}, []string{"neural-artist", "nft-metamind"}},
		{"price cap", AgentQuery{MaxPrice: "0.020000"}, []string{"pinata-express", "nft-metamind"}},
		{"price sort", AgentQuery{Sort: "price"}, []string{"pinata-express", "nft-metamind", "neural-artist"}},
		{"search", AgentQuery{Search: "metamind"}, []string{"nft-metamind"}},
		{"limit", AgentQuery{Limit: 1}, []string{"pinata-express"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents, err := store.ListAgents(ctx, tt.query)
			if err != nil {
				t.Fatalf("ListAgents: %v", err)
			}
			if len(agents) != len(tt.want) {
				t.Fatalf("got %d agents, want %d", len(agents), len(tt.want))
			}
			for i, slug := range tt.want {
				if agents[i].Slug != slug {
					t.Errorf("position %d: got %q, want %q", i, agents[i].Slug, slug)
				}
			}
		})
	}
}

func TestMemoryStore_RecordExecution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	agent := newAgent("neural-artist", CategoryCreative, "0.050000")
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.RecordExecution(ctx, agent.ID); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}
	got, err := store.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.TotalExecutions != 3 {
		t.Errorf("expected 3 executions, got %d", got.TotalExecutions)
	}
}

func TestMemoryStore_DeleteAgent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	agent := newAgent("neural-artist", CategoryCreative, "0.050000")
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := store.DeleteAgent(ctx, "neural-artist"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := store.GetAgentBySlug(ctx, "neural-artist"); err != ErrAgentNotFound {
		t.Errorf("expected ErrAgentNotFound after delete, got %v", err)
	}
	// slug is reusable after delete
	if err := store.CreateAgent(ctx, newAgent("neural-artist", CategoryCreative, "0.050000")); err != nil {
		t.Errorf("expected slug reusable after delete, got %v", err)
	}
}

func TestMemoryStore_SetStatusInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAgent(ctx, newAgent("neural-artist", CategoryCreative, "0.050000")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := store.SetStatus(ctx, "neural-artist", "sleeping"); err != ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if err := store.SetStatus(ctx, "missing", StatusOffline); err != ErrAgentNotFound {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := Seed(ctx, store); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	agents, err := store.ListAgents(ctx, AgentQuery{})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 6 {
		t.Fatalf("expected 6 seeded agents, got %d", len(agents))
	}

	// idempotent
	if err := Seed(ctx, store); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	agents, _ = store.ListAgents(ctx, AgentQuery{})
	if len(agents) != 6 {
		t.Errorf("expected seed to be idempotent, got %d agents", len(agents))
	}
}
