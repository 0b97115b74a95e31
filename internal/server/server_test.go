package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/config"
	"github.com/agentbazaar/bazaar/internal/logging"
	"github.com/agentbazaar/bazaar/internal/wallet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockWallet implements wallet.WalletService for testing
type mockWallet struct{}

func (m *mockWallet) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*wallet.TransferResult, error) {
	return &wallet.TransferResult{TxHash: "0xmock", From: "0xplatform", To: to.Hex(), Amount: "1.00"}, nil
}

func (m *mockWallet) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*wallet.TransferResult, error) {
	return &wallet.TransferResult{TxHash: txHash}, nil
}

func (m *mockWallet) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(1000000), nil
}

func (m *mockWallet) VerifyPayment(ctx context.Context, from string, minAmount string, txHash string) (bool, error) {
	return true, nil
}

func (m *mockWallet) VerifyTransferTo(ctx context.Context, to string, minAmount string, txHash string) (bool, error) {
	return true, nil
}

func (m *mockWallet) Address() string {
	return "0x0000000000000000000000000000000000000001"
}

func (m *mockWallet) ChainID() int64 {
	return 137
}

func (m *mockWallet) Balance(ctx context.Context) (string, error) {
	return "1.000000", nil
}

func (m *mockWallet) Close() error {
	return nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		LogLevel:       "error",
		RPCURL:         "https://polygon-rpc.com",
		ChainID:        137,
		PrivateKey:     "0000000000000000000000000000000000000000000000000000000000000001",
		PlatformWallet: "0x0000000000000000000000000000000000000001",
		USDCContract:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		AdminSecret:    "test-secret",
	}
}

// newTestServer creates a server with mock dependencies
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithWallet(&mockWallet{}), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/v1/agents",
		"GET:/v1/agents/:slug",
		"GET:/v1/agents/:slug/quote",
		"POST:/v1/agents",
		"POST:/v1/transactions",
		"GET:/v1/transactions",
		"GET:/v1/transactions/:id",
		"POST:/v1/agents/execute/:slug",
		"GET:/v1/admin/stats",
		"GET:/v1/admin/transactions",
		"POST:/v1/admin/reconcile",
		"POST:/v1/admin/transactions/:id/refund",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Storefront page tests
// ---------------------------------------------------------------------------

func TestStorefrontPage(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for storefront, got %d", w.Code)
	}

	if !strings.Contains(w.Body.String(), "Agent Bazaar") {
		t.Error("Expected storefront HTML")
	}
}

func TestTransactionPage(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/transactions/tx_123", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for transaction page, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Marketplace flow tests
// ---------------------------------------------------------------------------

func TestCatalogSeeded(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/agents", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count == 0 {
		t.Error("Expected seeded agents in demo mode")
	}
}

func TestSkillsWithoutCredentialsOffline(t *testing.T) {
	// No provider credentials in testConfig, so every provider-backed
	// agent from the launch roster should be offline.
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/agents/neural-artist", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Agent struct {
			Status string `json:"status"`
		} `json:"agent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Agent.Status != "offline" {
		t.Errorf("Expected neural-artist offline without credentials, got %q", resp.Agent.Status)
	}
}

func TestRecordAndFetchTransaction(t *testing.T) {
	s := newTestServer(t)

	// Look up a seeded agent id first
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/agents/collection-curator", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for agent lookup, got %d", w.Code)
	}
	var agentResp struct {
		Agent struct {
			ID string `json:"id"`
		} `json:"agent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &agentResp); err != nil {
		t.Fatalf("Failed to parse agent: %v", err)
	}

	body := `{"agent_id":"` + agentResp.Agent.ID + `","user_id":"user_1","amount":"0.053500","blockchain_tx_hash":"0x` + strings.Repeat("ab", 32) + `"}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	// Fetch it back with the agent join
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/transactions/"+created.Transaction.ID, nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var fetched struct {
		Transaction struct {
			Agent map[string]any `json:"agent"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if fetched.Transaction.Agent["slug"] != "collection-curator" {
		t.Errorf("Expected agent join on transaction, got %v", fetched.Transaction.Agent)
	}
}

// ---------------------------------------------------------------------------
// Auth boundary tests
// ---------------------------------------------------------------------------

func TestProtectedRouteRequiresKey(t *testing.T) {
	s := newTestServer(t)

	body := `{"slug":"new-agent","name":"New Agent","category":"data","price_per_task":"0.10"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/agents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without API key, got %d", w.Code)
	}
}

func TestAdminRouteRequiresSecret(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/stats", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without admin secret, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/admin/stats", nil)
	req.Header.Set("X-Admin-Secret", "test-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with admin secret, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
