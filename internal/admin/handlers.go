package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/ledger"
)

// Handler provides admin HTTP endpoints. Routes registered here must
// sit behind the admin-secret middleware.
type Handler struct {
	stats        StatsProvider
	transactions TransactionLister
	reconciler   Reconciler
	alerts       AlertReader
	logger       *slog.Logger
}

// NewHandler creates an admin handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// WithLedger wires stats and transaction listing from the ledger.
func (h *Handler) WithLedger(l *ledger.Ledger) *Handler {
	h.stats = l
	h.transactions = l
	return h
}

// WithReconciler enables on-demand reconciliation runs.
func (h *Handler) WithReconciler(r Reconciler) *Handler {
	h.reconciler = r
	return h
}

// WithAlerts enables triggered-alert listing.
func (h *Handler) WithAlerts(a AlertReader) *Handler {
	h.alerts = a
	return h
}

// RegisterRoutes sets up admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/stats", h.Stats)
	r.GET("/admin/transactions", h.ListTransactions)
	r.POST("/admin/reconcile", h.Reconcile)
	r.GET("/admin/alerts", h.ListAlerts)
}

// Stats returns aggregate platform activity
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "stats_failed",
			"message": "Failed to load platform stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListTransactions returns transactions across all users, newest first.
func (h *Handler) ListTransactions(c *gin.Context) {
	q := ledger.Query{
		AgentID: c.Query("agent_id"),
		UserID:  c.Query("user_id"),
		Status:  c.Query("status"),
		Limit:   50,
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit <= 500 {
		q.Limit = limit
	}

	txs, err := h.transactions.List(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list transactions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Reconcile runs a chain-versus-ledger check and returns the result.
func (h *Handler) Reconcile(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "reconciliation_unavailable",
			"message": "No chain connection configured",
		})
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		h.logger.Error("reconciliation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reconciliation_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAlerts returns recently triggered alerts, optionally per agent.
func (h *Handler) ListAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []any{}, "count": 0})
		return
	}

	limit := 50
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}

	alerts, err := h.alerts.GetAlerts(c.Request.Context(), c.Query("agent_id"), limit)
	if err != nil {
		h.logger.Error("failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list alerts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
