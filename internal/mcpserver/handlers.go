package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *BazaarClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *BazaarClient) *Handlers {
	return &Handlers{client: client}
}

// HandleBrowseAgents searches the marketplace.
func (h *Handlers) HandleBrowseAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	search := req.GetString("search", "")
	maxPrice := req.GetString("max_price", "")
	sort := req.GetString("sort", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.BrowseAgents(ctx, category, search, maxPrice, sort, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to browse agents: %v", err)), nil
	}

	text, err := formatAgentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agents: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetAgent returns one agent's listing.
func (h *Handlers) HandleGetAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug := req.GetString("slug", "")
	if slug == "" {
		return mcp.NewToolResultError("slug is required"), nil
	}

	raw, err := h.client.GetAgent(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent: %v", err)), nil
	}

	text, err := formatAgent(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agent: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetQuote returns the charge breakdown for an agent.
func (h *Handlers) HandleGetQuote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug := req.GetString("slug", "")
	if slug == "" {
		return mcp.NewToolResultError("slug is required"), nil
	}

	raw, err := h.client.GetQuote(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get quote: %v", err)), nil
	}

	text, err := formatQuote(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse quote: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListTransactions lists a user's payment history.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListTransactions(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	text, err := formatTransactionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetTransaction returns one transaction with receipt and output.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	var wrapper struct {
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Transaction == nil {
		return mcp.NewToolResultError("Failed to parse transaction"), nil
	}

	return mcp.NewToolResultText(formatTransaction(wrapper.Transaction)), nil
}

// --- Formatting helpers ---

func formatAgentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Agents []map[string]any `json:"agents"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected agents response format")
	}
	if len(resp.Agents) == 0 {
		return "No agents found matching your criteria.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d agent(s):\n\n", len(resp.Agents))
	for i, a := range resp.Agents {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(a, "name"), getString(a, "slug"))
		fmt.Fprintf(&sb, "   Category: %s | Status: %s\n", getString(a, "category"), getString(a, "status"))
		if pricing, ok := a["pricing"].(map[string]any); ok {
			fmt.Fprintf(&sb, "   Price: %s %s per task\n", getString(pricing, "per_task"), getString(pricing, "currency"))
		}
		if rating, ok := getFloat(a, "rating"); ok && rating > 0 {
			fmt.Fprintf(&sb, "   Rating: %.1f/5\n", rating)
		}
		if i < len(resp.Agents)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatAgent(raw json.RawMessage) (string, error) {
	var wrapper struct {
		Agent map[string]any `json:"agent"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Agent == nil {
		return "", fmt.Errorf("unexpected agent response format")
	}
	a := wrapper.Agent

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", getString(a, "name"), getString(a, "slug"))
	if desc := getString(a, "description"); desc != "" {
		fmt.Fprintf(&sb, "%s\n", desc)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Category: %s\n", getString(a, "category"))
	fmt.Fprintf(&sb, "Status: %s\n", getString(a, "status"))
	if pricing, ok := a["pricing"].(map[string]any); ok {
		fmt.Fprintf(&sb, "Price: %s %s per task\n", getString(pricing, "per_task"), getString(pricing, "currency"))
	}
	if rating, ok := getFloat(a, "rating"); ok && rating > 0 {
		fmt.Fprintf(&sb, "Rating: %.1f/5\n", rating)
	}
	if runs, ok := getFloat(a, "total_executions"); ok && runs > 0 {
		fmt.Fprintf(&sb, "Completed runs: %.0f\n", runs)
	}
	if caps, ok := a["capabilities"].([]any); ok && len(caps) > 0 {
		parts := make([]string, 0, len(caps))
		for _, c := range caps {
			if s, ok := c.(string); ok {
				parts = append(parts, s)
			}
		}
		fmt.Fprintf(&sb, "Capabilities: %s\n", strings.Join(parts, ", "))
	}
	return sb.String(), nil
}

func formatQuote(raw json.RawMessage) (string, error) {
	var q map[string]any
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Quote for %s:\n", getString(q, "slug"))
	fmt.Fprintf(&sb, "  Price:        %s %s\n", getString(q, "price"), getString(q, "currency"))
	fmt.Fprintf(&sb, "  Platform fee: %s %s\n", getString(q, "platform_fee"), getString(q, "currency"))
	fmt.Fprintf(&sb, "  Total:        %s %s\n", getString(q, "total"), getString(q, "currency"))
	return sb.String(), nil
}

func formatTransactionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected transactions response format")
	}
	if len(resp.Transactions) == 0 {
		return "No transactions found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d transaction(s):\n\n", len(resp.Transactions))
	for i, tx := range resp.Transactions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, formatTransaction(tx))
		if i < len(resp.Transactions)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatTransaction(tx map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s\n", getString(tx, "id"))
	if agent, ok := tx["agent"].(map[string]any); ok {
		fmt.Fprintf(&sb, "   Agent: %s (%s)\n", getString(agent, "name"), getString(agent, "slug"))
	}
	fmt.Fprintf(&sb, "   Amount: %s %s | Status: %s\n",
		getString(tx, "amount"), getString(tx, "currency"), getString(tx, "status"))
	if receipt, ok := tx["receipt"].(map[string]any); ok {
		fmt.Fprintf(&sb, "   Settlement: %s on %s, tx %s\n",
			getString(receipt, "settlement"), getString(receipt, "network"),
			getString(receipt, "blockchain_tx_hash"))
	}
	if msg := getString(tx, "error_message"); msg != "" {
		fmt.Fprintf(&sb, "   Error: %s\n", msg)
	}
	if output, ok := tx["output_data"].(map[string]any); ok && len(output) > 0 {
		data, err := json.Marshal(output)
		if err == nil {
			fmt.Fprintf(&sb, "   Output: %s\n", formatJSON(data))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
