// Agent Bazaar payment CLI - hires an agent from the command line by
// paying its USDC price plus the platform fee on chain and recording
// the transaction with the marketplace.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentbazaar/bazaar/internal/config"
	"github.com/agentbazaar/bazaar/internal/logging"
	"github.com/agentbazaar/bazaar/internal/payment"
	"github.com/agentbazaar/bazaar/internal/wallet"
)

func main() {
	var (
		slug        = flag.String("agent", "", "agent slug to hire (required)")
		userID      = flag.String("user", "cli_buyer", "buyer user id")
		inputJSON   = flag.String("input", "{}", "skill input as a JSON object")
		apiURL      = flag.String("api", envOrDefault("BAZAAR_API_URL", "http://localhost:8080"), "marketplace base URL")
		acceptTerms = flag.Bool("accept-terms", false, "accept the marketplace terms of service")
	)
	flag.Parse()

	if *slug == "" {
		fmt.Fprintln(os.Stderr, "usage: pay -agent <slug> -accept-terms [-input '{...}'] [-user <id>]")
		os.Exit(2)
	}

	logger := logging.New(envOrDefault("LOG_LEVEL", "info"), "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(*inputJSON), &input); err != nil {
		logger.Error("-input must be a JSON object", "error", err)
		os.Exit(1)
	}

	w, err := wallet.New(wallet.Config{
		RPCURL:       cfg.RPCURL,
		PrivateKey:   cfg.PrivateKey,
		ChainID:      cfg.ChainID,
		USDCContract: cfg.USDCContract,
	})
	if err != nil {
		logger.Error("failed to create wallet", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	ctx := context.Background()
	api := newAPIClient(*apiURL)

	agent, err := api.agentBySlug(ctx, *slug)
	if err != nil {
		logger.Error("failed to look up agent", "slug", *slug, "error", err)
		os.Exit(1)
	}
	if agent.Status != "online" {
		logger.Error("agent is not accepting work", "slug", *slug, "status", agent.Status)
		os.Exit(1)
	}

	fmt.Printf("Hiring %s (%s) for %s USDC plus the platform fee\n",
		agent.Name, agent.Slug, agent.Pricing.PerTask)
	fmt.Printf("Paying from %s on chain %d\n", w.Address(), w.ChainID())

	executor := &apiExecutor{api: api, done: make(chan error, 1)}
	orch := payment.New(
		&walletConnector{wallet: w},
		&walletTransferor{wallet: w},
		&apiLedger{api: api},
		executor,
		cfg.PlatformWallet,
		cfg.ChainID,
		logger,
	)

	result, err := orch.Pay(ctx, payment.Request{
		AgentID:       agent.ID,
		AgentSlug:     agent.Slug,
		UserID:        *userID,
		Price:         agent.Pricing.PerTask,
		Input:         input,
		TermsAccepted: *acceptTerms,
	})
	if err != nil {
		var f *payment.Failure
		if errors.As(err, &f) {
			fmt.Fprintf(os.Stderr, "payment failed: %s: %s\n", f.Code, f.Message)
			if f.TxHash != "" {
				fmt.Fprintf(os.Stderr, "tx hash: %s\n", f.TxHash)
			}
			if f.FundsMoved {
				fmt.Fprintln(os.Stderr, "funds left the wallet; keep the tx hash for support")
			}
		} else {
			fmt.Fprintf(os.Stderr, "payment failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println("Payment confirmed")
	fmt.Printf("  transaction: %s\n", result.TransactionID)
	fmt.Printf("  price:       %s USDC\n", result.Price)
	fmt.Printf("  fee:         %s USDC\n", result.Fee)
	fmt.Printf("  total:       %s USDC\n", result.Total)
	fmt.Printf("  tx hash:     %s\n", result.TxHash)
	fmt.Printf("  receipt:     %s%s\n", *apiURL, result.RedirectURL)

	// The execution trigger runs in the background; hold the process
	// open long enough for it to reach the marketplace.
	select {
	case err := <-executor.done:
		if err != nil {
			logger.Warn("execution trigger failed", "error", err)
		} else {
			fmt.Println("Agent execution started")
		}
	case <-time.After(30 * time.Second):
		logger.Warn("timed out waiting for the execution trigger")
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// -----------------------------------------------------------------------------
// Wallet adapters
// -----------------------------------------------------------------------------

type walletConnector struct {
	wallet *wallet.Wallet
}

func (c *walletConnector) Connected() bool { return c.wallet != nil }
func (c *walletConnector) ChainID() int64  { return c.wallet.ChainID() }

type walletTransferor struct {
	wallet *wallet.Wallet
}

func (t *walletTransferor) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	res, err := t.wallet.Transfer(ctx, common.HexToAddress(to), amount)
	if err != nil {
		return "", err
	}
	return res.TxHash, nil
}

func (t *walletTransferor) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) error {
	_, err := t.wallet.WaitForConfirmation(ctx, txHash, timeout)
	return err
}

// -----------------------------------------------------------------------------
// Marketplace API adapters
// -----------------------------------------------------------------------------

type apiLedger struct {
	api *apiClient
}

func (l *apiLedger) RecordPayment(ctx context.Context, rec payment.Record) (string, error) {
	return l.api.createTransaction(ctx, rec)
}

type apiExecutor struct {
	api  *apiClient
	done chan error
}

func (e *apiExecutor) Execute(ctx context.Context, agentSlug, transactionID string, input map[string]any) error {
	err := e.api.executeAgent(ctx, agentSlug, transactionID, input)
	select {
	case e.done <- err:
	default:
	}
	return err
}

// -----------------------------------------------------------------------------
// HTTP client
// -----------------------------------------------------------------------------

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type agentListing struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Pricing struct {
		PerTask  string `json:"per_task"`
		Currency string `json:"currency"`
	} `json:"pricing"`
}

func (c *apiClient) agentBySlug(ctx context.Context, slug string) (*agentListing, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/v1/agents/"+slug, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Agent agentListing `json:"agent"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	return &resp.Agent, nil
}

func (c *apiClient) createTransaction(ctx context.Context, rec payment.Record) (string, error) {
	body := map[string]any{
		"agent_id":           rec.AgentID,
		"user_id":            rec.UserID,
		"amount":             rec.Amount,
		"blockchain_tx_hash": rec.TxHash,
		"input_data":         rec.Input,
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/transactions", body)
	if err != nil {
		return "", err
	}
	var resp struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if resp.Transaction.ID == "" {
		return "", fmt.Errorf("marketplace returned no transaction id")
	}
	return resp.Transaction.ID, nil
}

func (c *apiClient) executeAgent(ctx context.Context, slug, transactionID string, input map[string]any) error {
	body := map[string]any{"transaction_id": transactionID}
	for k, v := range input {
		body[k] = v
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/agents/execute/"+slug, body)
	return err
}

func (c *apiClient) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}
