package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/pagination"
	"github.com/agentbazaar/bazaar/internal/security"
	"github.com/agentbazaar/bazaar/internal/validation"
)

// AgentInfo is the minimal agent projection joined onto transaction responses.
type AgentInfo struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AgentDirectory resolves agent ids to display info.
type AgentDirectory interface {
	AgentInfo(ctx context.Context, agentID string) (*AgentInfo, error)
}

// TransferVerifier confirms a submitted tx hash settles the charged
// amount on chain before the payment is recorded.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, txHash, minAmount string) (bool, error)
}

// Handler provides HTTP endpoints for ledger operations
type Handler struct {
	ledger     *Ledger
	agents     AgentDirectory   // nil = transactions returned without agent join
	alertStore AlertStore       // nil = alert endpoints disabled
	verifier   TransferVerifier // nil = tx hashes recorded without chain check
	logger     *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// WithAgentDirectory attaches an agent resolver for joined responses.
func (h *Handler) WithAgentDirectory(agents AgentDirectory) *Handler {
	h.agents = agents
	return h
}

// WithAlertStore enables the alert config endpoints.
func (h *Handler) WithAlertStore(store AlertStore) *Handler {
	h.alertStore = store
	return h
}

// WithVerifier enables on-chain verification of submitted tx hashes.
func (h *Handler) WithVerifier(v TransferVerifier) *Handler {
	h.verifier = v
	return h
}

// RegisterRoutes sets up transaction routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
}

// RegisterProtectedRoutes sets up authenticated agent-owner routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/alerts", h.CreateAlertConfig)
	r.GET("/alerts", h.ListAlerts)
	r.DELETE("/alerts/:id", h.DeleteAlertConfig)
}

// RegisterAdminRoutes sets up admin-only ledger routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/transactions/:id/refund", h.RefundTransaction)
}

// CreateTransactionRequest is the payload for recording a payment.
type CreateTransactionRequest struct {
	AgentID          string         `json:"agent_id" binding:"required"`
	UserID           string         `json:"user_id" binding:"required"`
	Amount           string         `json:"amount" binding:"required"`
	BlockchainTxHash string         `json:"blockchain_tx_hash"`
	InputData        map[string]any `json:"input_data"`
}

// CreateTransaction handles POST /transactions
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "agent_id, user_id and amount are required",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": errs.Error(),
		})
		return
	}

	if req.BlockchainTxHash != "" && !validation.IsValidTxHash(req.BlockchainTxHash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "blockchain_tx_hash must be 0x + 64 hex chars",
		})
		return
	}

	if req.BlockchainTxHash != "" && h.verifier != nil {
		ok, err := h.verifier.VerifyTransfer(c.Request.Context(), req.BlockchainTxHash, req.Amount)
		if err != nil {
			// Chain lookup failures must not lose a real payment record.
			h.logger.Warn("transfer verification unavailable, recording unverified",
				"tx_hash", req.BlockchainTxHash, "error", err)
		} else if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "payment_not_verified",
				"message": "No matching USDC transfer found for this tx hash",
			})
			return
		}
	}

	tx := &Transaction{
		AgentID:   req.AgentID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		InputData: req.InputData,
	}
	if req.BlockchainTxHash != "" {
		tx.Receipt = NewReceipt(req.BlockchainTxHash)
		tx.Status = StatusCompleted
	} else {
		tx.Status = StatusPending
	}

	if err := h.ledger.Record(c.Request.Context(), tx); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateTxHash):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_tx_hash",
				"message": "This transfer was already recorded",
			})
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "Amount must be a positive decimal number",
			})
		default:
			h.logger.Error("record transaction failed", "agent_id", req.AgentID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "ledger_error",
				"message": "Failed to record transaction",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": h.withAgent(c.Request.Context(), tx)})
}

// ListTransactions handles GET /transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	q := Query{
		AgentID: c.Query("agent_id"),
		UserID:  c.Query("user_id"),
		Status:  c.Query("status"),
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 200 {
			q.Limit = n
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil && n >= 0 {
			q.Offset = n
		}
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}
	if cursor != nil {
		q.Before = cursor.CreatedAt
		q.BeforeID = cursor.ID
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	q.Limit = limit + 1 // one extra row decides has_more

	txs, err := h.ledger.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to list transactions",
		})
		return
	}

	txs, nextCursor, hasMore := pagination.ComputePage(txs, limit, func(tx *Transaction) (time.Time, string) {
		return tx.CreatedAt, tx.ID
	})

	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, h.withAgent(c.Request.Context(), tx))
	}
	resp := gin.H{
		"transactions": out,
		"count":        len(out),
	}
	if hasMore {
		resp["next_cursor"] = nextCursor
		resp["has_more"] = true
	}
	c.JSON(http.StatusOK, resp)
}

// GetTransaction handles GET /transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "transaction_not_found",
				"message": "No transaction with that id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve transaction",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": h.withAgent(c.Request.Context(), tx)})
}

// RefundRequest for marking a transaction refunded.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RefundTransaction handles POST /admin/transactions/:id/refund
func (h *Handler) RefundTransaction(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}

	id := c.Param("id")
	if err := h.ledger.MarkRefunded(c.Request.Context(), id, req.Reason); err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "transaction_not_found",
				"message": "No transaction with that id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "refund_error",
			"message": "Failed to mark transaction refunded",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "refunded",
		"transaction_id": id,
	})
}

// CreateAlertConfigRequest is the payload for an alert rule.
type CreateAlertConfigRequest struct {
	AgentID    string `json:"agent_id" binding:"required"`
	AlertType  string `json:"alert_type" binding:"required"`
	Threshold  string `json:"threshold"`
	WebhookURL string `json:"webhook_url"`
}

// CreateAlertConfig handles POST /alerts
func (h *Handler) CreateAlertConfig(c *gin.Context) {
	if h.alertStore == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_configured",
			"message": "Alerts are not enabled",
		})
		return
	}

	var req CreateAlertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "agent_id and alert_type are required",
		})
		return
	}

	if req.AlertType != "large_payment" && req.AlertType != "execution_failed" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_alert_type",
			"message": "alert_type must be large_payment or execution_failed",
		})
		return
	}
	if req.AlertType == "large_payment" {
		if errs := validation.Validate(
			validation.Required("threshold", req.Threshold),
			validation.ValidAmount("threshold", req.Threshold),
		); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_threshold",
				"message": errs.Error(),
			})
			return
		}
	}
	if req.WebhookURL != "" {
		// The webhook is fetched server side, so the target must not be
		// an internal address.
		if err := security.ValidateEndpointURL(req.WebhookURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_webhook_url",
				"message": err.Error(),
			})
			return
		}
	}

	cfg := &AlertConfig{
		AgentID:    req.AgentID,
		AlertType:  req.AlertType,
		Threshold:  req.Threshold,
		WebhookURL: req.WebhookURL,
		Enabled:    true,
	}
	if err := h.alertStore.CreateConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "alert_error",
			"message": "Failed to create alert config",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"config": cfg})
}

// ListAlerts handles GET /alerts?agent_id=
func (h *Handler) ListAlerts(c *gin.Context) {
	if h.alertStore == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_configured",
			"message": "Alerts are not enabled",
		})
		return
	}

	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_agent_id",
			"message": "agent_id query parameter is required",
		})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := h.alertStore.GetAlerts(c.Request.Context(), agentID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "alert_error",
			"message": "Failed to list alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// DeleteAlertConfig handles DELETE /alerts/:id
func (h *Handler) DeleteAlertConfig(c *gin.Context) {
	if h.alertStore == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_configured",
			"message": "Alerts are not enabled",
		})
		return
	}

	if err := h.alertStore.DeleteConfig(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "alert_error",
			"message": "Failed to delete alert config",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// withAgent renders a transaction with its joined agent info when a
// directory is configured.
func (h *Handler) withAgent(ctx context.Context, tx *Transaction) gin.H {
	out := gin.H{
		"id":         tx.ID,
		"agent_id":   tx.AgentID,
		"user_id":    tx.UserID,
		"amount":     tx.Amount,
		"currency":   tx.Currency,
		"status":     tx.Status,
		"created_at": tx.CreatedAt,
		"updated_at": tx.UpdatedAt,
	}
	if tx.Receipt != nil {
		out["receipt"] = tx.Receipt
	}
	if tx.InputData != nil {
		out["input_data"] = tx.InputData
	}
	if tx.OutputData != nil {
		out["output_data"] = tx.OutputData
	}
	if tx.ErrorMessage != "" {
		out["error_message"] = tx.ErrorMessage
	}

	if h.agents != nil {
		if info, err := h.agents.AgentInfo(ctx, tx.AgentID); err == nil && info != nil {
			out["agent"] = info
		}
	}
	return out
}
