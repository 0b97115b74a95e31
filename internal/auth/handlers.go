package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentbazaar/bazaar/internal/validation"
)

// Handler provides HTTP endpoints for accounts and API keys
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// RegisterRoutes sets up public auth routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/auth", h.Info)
	r.POST("/auth/signup", h.Signup)
}

// RegisterProtectedRoutes sets up key-management routes
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)
	r.POST("/auth/wallet", h.ConnectWallet)
	r.GET("/auth/keys", h.ListKeys)
	r.POST("/auth/keys", h.CreateKey)
	r.DELETE("/auth/keys/:keyId", h.RevokeKey)
	r.POST("/auth/keys/:keyId/regenerate", h.RegenerateKey)
}

// Info returns auth configuration info
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":       "api_key",
		"header":     "Authorization: Bearer sk_...",
		"alt_header": "X-API-Key: sk_...",
		"note":       "API key is returned on signup. Store it securely.",
		"public_endpoints": []string{
			"GET /v1/agents",
			"GET /v1/agents/:slug",
			"GET /v1/agents/:slug/quote",
			"POST /v1/auth/signup",
		},
		"protected_endpoints": []string{
			"POST /v1/transactions",
			"GET /v1/transactions",
			"POST /v1/agents/execute/:slug",
			"POST /v1/agents",
		},
	})
}

// SignupRequest is the request body for creating an account
type SignupRequest struct {
	Email string `json:"email" binding:"required"`
}

// Signup creates an account and its first API key
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "email is required",
		})
		return
	}

	rawKey, user, err := h.manager.Register(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "email_taken",
				"message": "That email is already registered",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "signup_failed",
			"message": "Failed to create account",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"api_key": rawKey,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// Me returns the authenticated account
func (h *Handler) Me(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.manager.GetUser(c.Request.Context(), key.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "Account no longer exists",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"key_id":   key.ID,
		"key_name": key.Name,
	})
}

// ConnectWalletRequest is the request body for attaching a wallet
type ConnectWalletRequest struct {
	Address string `json:"address" binding:"required"`
}

// ConnectWallet records the buyer's Polygon address
func (h *Handler) ConnectWallet(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ConnectWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "address is required",
		})
		return
	}
	if !validation.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid 0x address",
		})
		return
	}

	if err := h.manager.ConnectWallet(c.Request.Context(), key.UserID, req.Address); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_update_failed",
			"message": "Failed to attach wallet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":        key.UserID,
		"wallet_address": validation.SanitizeAddress(req.Address),
	})
}

// ListKeys returns API keys for the authenticated user
func (h *Handler) ListKeys(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keys, err := h.manager.ListKeys(c.Request.Context(), key.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list keys",
		})
		return
	}

	// Don't expose hashes
	safeKeys := make([]gin.H, len(keys))
	for i, k := range keys {
		safeKeys[i] = gin.H{
			"id":         k.ID,
			"name":       k.Name,
			"created_at": k.CreatedAt,
			"last_used":  k.LastUsed,
			"revoked":    k.Revoked,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  safeKeys,
		"count": len(safeKeys),
	})
}

// CreateKeyRequest is the request body for creating a key
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKey creates a new API key
func (h *Handler) CreateKey(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateKeyRequest
	c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "Additional key"
	}

	rawKey, newKey, err := h.manager.GenerateKey(c.Request.Context(), key.UserID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to create key",
			"message": "Failed to create API key",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"api_key": rawKey,
		"key_id":  newKey.ID,
		"name":    newKey.Name,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// RevokeKey revokes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keyID := c.Param("keyId")

	// Prevent revoking current key
	if keyID == key.ID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "cannot_revoke_current",
			"message": "Cannot revoke the key you're using",
		})
		return
	}

	if err := h.manager.RevokeKey(c.Request.Context(), keyID, key.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Key revoked",
		"key_id":  keyID,
	})
}

// RegenerateKey revokes old key and creates new one
func (h *Handler) RegenerateKey(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keyID := c.Param("keyId")

	h.manager.RevokeKey(c.Request.Context(), keyID, key.UserID)

	rawKey, newKey, err := h.manager.GenerateKey(c.Request.Context(), key.UserID, "Regenerated key")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to regenerate",
			"message": "Failed to regenerate API key",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":    rawKey,
		"key_id":     newKey.ID,
		"old_key_id": keyID,
		"warning":    "Store this key securely. It will not be shown again.",
	})
}
