package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/logging"
)

func newTestRouter(t *testing.T) (*gin.Engine, Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	if err := Seed(context.Background(), store); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	handler := NewHandler(store, logging.Discard())
	r := gin.New()
	public := r.Group("/v1")
	handler.RegisterRoutes(public)
	handler.RegisterProtectedRoutes(public) // no auth middleware in tests
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListAgentsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/agents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Agents []Agent `json:"agents"`
		Count  int     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 6 {
		t.Errorf("expected 6 agents, got %d", resp.Count)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/agents?category=storage", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Agents[0].Slug != "pinata-express" {
		t.Errorf("expected only pinata-express for storage, got %+v", resp.Agents)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/agents?category=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown category, got %d", w.Code)
	}
}

func TestGetAgentEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/agents/neural-artist", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Agent Agent `json:"agent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Agent.Category != CategoryCreative {
		t.Errorf("unexpected category %q", resp.Agent.Category)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/agents/no-such-agent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetQuoteEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/agents/neural-artist/quote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Price       string `json:"price"`
		PlatformFee string `json:"platform_fee"`
		Total       string `json:"total"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Price != "0.050000" {
		t.Errorf("price = %q, want 0.050000", resp.Price)
	}
	if resp.PlatformFee != "0.003500" {
		t.Errorf("platform_fee = %q, want 0.003500", resp.PlatformFee)
	}
	if resp.Total != "0.053500" {
		t.Errorf("total = %q, want 0.053500", resp.Total)
	}
	if resp.Currency != "USDC" {
		t.Errorf("currency = %q, want USDC", resp.Currency)
	}
}

func TestRegisterAgentEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/agents", map[string]any{
		"slug":           "prompt-smith",
		"name":           "Prompt Smith",
		"category":       "creative",
		"price_per_task": "0.015000",
		"capabilities":   []string{"prompt-tuning"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	agent, err := store.GetAgentBySlug(context.Background(), "prompt-smith")
	if err != nil {
		t.Fatalf("agent not persisted: %v", err)
	}
	if agent.Pricing.Currency != "USDC" {
		t.Errorf("expected USDC currency, got %q", agent.Pricing.Currency)
	}

	// duplicate slug
	w = doJSON(t, r, http.MethodPost, "/v1/agents", map[string]any{
		"slug":           "prompt-smith",
		"name":           "Prompt Smith II",
		"category":       "creative",
		"price_per_task": "0.015000",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate slug, got %d", w.Code)
	}
}

func TestRegisterAgentValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing fields", map[string]any{"slug": "x-agent"}},
		{"bad slug", map[string]any{
			"slug": "Bad Slug!", "name": "X", "category": "creative", "price_per_task": "0.010000",
		}},
		{"bad category", map[string]any{
			"slug": "x-agent", "name": "X", "category": "quantum", "price_per_task": "0.010000",
		}},
		{"bad price", map[string]any{
			"slug": "x-agent", "name": "X", "category": "creative", "price_per_task": "free",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/v1/agents", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSetStatusEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPatch, "/v1/agents/neural-artist/status", map[string]any{
		"status": "maintenance",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	agent, err := store.GetAgentBySlug(context.Background(), "neural-artist")
	if err != nil {
		t.Fatalf("GetAgentBySlug: %v", err)
	}
	if agent.Status != StatusMaintenance {
		t.Errorf("status = %q, want maintenance", agent.Status)
	}

	w = doJSON(t, r, http.MethodPatch, "/v1/agents/neural-artist/status", map[string]any{
		"status": "sleeping",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %d", w.Code)
	}
}

func TestDeleteAgentEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/v1/agents/collection-curator", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := store.GetAgentBySlug(context.Background(), "collection-curator"); err != ErrAgentNotFound {
		t.Errorf("expected agent gone, got %v", err)
	}

	w = doJSON(t, r, http.MethodDelete, "/v1/agents/collection-curator", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}
}
