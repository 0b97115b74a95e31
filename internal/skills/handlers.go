package skills

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AgentLookup resolves the marketplace agent behind an execute request.
type AgentLookup interface {
	AgentBySlug(ctx context.Context, slug string) (id string, online bool, err error)
}

// Handler provides the execution HTTP endpoint
type Handler struct {
	service *Service
	lookup  AgentLookup
	logger  *slog.Logger
}

// NewHandler creates an execution handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// WithAgentLookup wires agent resolution and availability checks
func (h *Handler) WithAgentLookup(lookup AgentLookup) *Handler {
	h.lookup = lookup
	return h
}

// RegisterRoutes sets up execution routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/agents/execute/:slug", h.Execute)
	r.GET("/skills", h.ListSkills)
}

// ListSkills returns the registered skill slugs
func (h *Handler) ListSkills(c *gin.Context) {
	slugs := h.service.registry.Slugs()
	c.JSON(http.StatusOK, gin.H{
		"skills": slugs,
		"count":  len(slugs),
	})
}

// Execute handles POST /agents/execute/:slug.
// The body carries transaction_id plus the skill's input fields; the
// skill output is attached to the transaction and echoed back.
func (h *Handler) Execute(c *gin.Context) {
	slug := c.Param("slug")

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Body must be a JSON object",
		})
		return
	}

	transactionID, _ := body["transaction_id"].(string)
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_transaction",
			"message": "transaction_id is required",
		})
		return
	}
	delete(body, "transaction_id")

	var agentID string
	if h.lookup != nil {
		id, online, err := h.lookup.AgentBySlug(c.Request.Context(), slug)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "agent_not_found",
				"message": "No agent with that slug",
			})
			return
		}
		if !online {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "agent_unavailable",
				"message": "Agent is not accepting work right now",
			})
			return
		}
		agentID = id
	}

	output, err := h.service.Execute(c.Request.Context(), slug, agentID, transactionID, body)
	if err != nil {
		switch {
		case errors.Is(err, ErrSkillNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "skill_not_found",
				"message": "No skill registered for that agent",
			})
		case errors.Is(err, ErrSkillUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":          "skill_unavailable",
				"message":        "Skill is temporarily unavailable, try again shortly",
				"success":        false,
				"transaction_id": transactionID,
			})
		case errors.Is(err, ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          "missing_input",
				"message":        err.Error(),
				"success":        false,
				"transaction_id": transactionID,
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":          "execution_failed",
				"message":        err.Error(),
				"success":        false,
				"transaction_id": transactionID,
			})
		}
		return
	}

	resp := gin.H{
		"success":        true,
		"transaction_id": transactionID,
	}
	for k, v := range output {
		if k == "success" || k == "transaction_id" {
			continue
		}
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}
