package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/usdc"
	"github.com/agentbazaar/bazaar/internal/validation"
)

// EventSink receives a notification when an agent joins the catalog.
// Implementations must not block.
type EventSink interface {
	AgentJoined(agentID, slug, category string)
}

// Handler provides HTTP endpoints for the agent catalog
type Handler struct {
	store  Store
	events EventSink // nil = no notifications
	logger *slog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// WithEvents wires registration notifications
func (h *Handler) WithEvents(sink EventSink) *Handler {
	h.events = sink
	return h
}

// RegisterRoutes sets up public catalog routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:slug", h.GetAgent)
	r.GET("/agents/:slug/quote", h.GetQuote)
}

// RegisterProtectedRoutes sets up authenticated owner routes
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/agents", h.RegisterAgent)
	r.PATCH("/agents/:slug/status", h.SetStatus)
	r.DELETE("/agents/:slug", h.DeleteAgent)
}

// ListAgents handles GET /agents
func (h *Handler) ListAgents(c *gin.Context) {
	query := AgentQuery{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		MaxPrice: c.Query("max_price"),
		Sort:     c.Query("sort"),
	}
	if query.Category != "" && !IsValidCategory(query.Category) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_category",
			"message": "Unknown category",
		})
		return
	}

	agents, err := h.store.ListAgents(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("list agents failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to list agents",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}

// GetAgent handles GET /agents/:slug
func (h *Handler) GetAgent(c *gin.Context) {
	agent, err := h.store.GetAgentBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "agent_not_found",
				"message": "No agent with that slug",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to retrieve agent",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

// GetQuote handles GET /agents/:slug/quote
// It returns the full charge breakdown a buyer will pay.
func (h *Handler) GetQuote(c *gin.Context) {
	agent, err := h.store.GetAgentBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "agent_not_found",
				"message": "No agent with that slug",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to retrieve agent",
		})
		return
	}

	price, ok := usdc.Parse(agent.Pricing.PerTask)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "invalid_price",
			"message": "Agent has a malformed price",
		})
		return
	}
	fee := usdc.Fee(price)
	total := usdc.Total(price)

	c.JSON(http.StatusOK, gin.H{
		"agent_id":     agent.ID,
		"slug":         agent.Slug,
		"price":        usdc.Format(price),
		"platform_fee": usdc.Format(fee),
		"total":        usdc.Format(total),
		"currency":     agent.Pricing.Currency,
	})
}

// RegisterAgent handles POST /agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "slug, name, category and price_per_task are required",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidSlug("slug", req.Slug),
		validation.MaxLength("name", req.Name, 255),
		validation.MaxLength("description", req.Description, 4000),
		validation.ValidAmount("price_per_task", req.PricePerTask),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if !IsValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_category",
			"message": "Unknown category",
		})
		return
	}

	agent := &Agent{
		Slug:         req.Slug,
		Name:         validation.SanitizeString(req.Name, 255),
		Description:  validation.SanitizeString(req.Description, 4000),
		Category:     req.Category,
		Capabilities: req.Capabilities,
		Pricing:      Pricing{PerTask: req.PricePerTask, Currency: "USDC"},
		AvatarURL:    req.AvatarURL,
		OwnerID:      c.GetString("user_id"), // from auth middleware
		Status:       StatusOnline,
	}

	if err := h.store.CreateAgent(c.Request.Context(), agent); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "slug_taken",
				"message": "An agent with that slug already exists",
			})
			return
		}
		h.logger.Error("create agent failed", "slug", req.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to register agent",
		})
		return
	}

	if h.events != nil {
		h.events.AgentJoined(agent.ID, agent.Slug, agent.Category)
	}

	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}

// SetStatusRequest is the payload for a status change.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus handles PATCH /agents/:slug/status
func (h *Handler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status is required",
		})
		return
	}

	err := h.store.SetStatus(c.Request.Context(), c.Param("slug"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrAgentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "agent_not_found",
				"message": "No agent with that slug",
			})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_status",
				"message": "status must be online, offline or maintenance",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "catalog_error",
				"message": "Failed to update status",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slug":   c.Param("slug"),
		"status": req.Status,
	})
}

// DeleteAgent handles DELETE /agents/:slug
func (h *Handler) DeleteAgent(c *gin.Context) {
	if err := h.store.DeleteAgent(c.Request.Context(), c.Param("slug")); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "agent_not_found",
				"message": "No agent with that slug",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to delete agent",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
