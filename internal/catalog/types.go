// Package catalog implements the marketplace agent directory.
// Browsing, pricing, and availability all flow through here.
package catalog

import (
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrAgentNotFound   = errors.New("catalog: agent not found")
	ErrSlugTaken       = errors.New("catalog: slug already registered")
	ErrInvalidCategory = errors.New("catalog: invalid category")
	ErrInvalidStatus   = errors.New("catalog: invalid status")
	ErrInvalidPrice    = errors.New("catalog: invalid price")
)

// -----------------------------------------------------------------------------
// Core Types
// -----------------------------------------------------------------------------

// Agent is a listed AI agent that users can pay to execute.
type Agent struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"` // URL identity, unique
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Capabilities []string `json:"capabilities,omitempty"`

	Pricing Pricing `json:"pricing"`

	// Marketplace signals
	Rating          float64 `json:"rating"` // 0-5
	TotalExecutions int64   `json:"total_executions"`

	Status    string `json:"status"` // online, offline, maintenance
	AvatarURL string `json:"avatar_url,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pricing is the per-execution price of an agent.
type Pricing struct {
	PerTask  string `json:"per_task"` // USDC, decimal string
	Currency string `json:"currency"` // always "USDC"
}

// Agent statuses
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusMaintenance = "maintenance"
)

// Marketplace taxonomy
const (
	CategoryCreative   = "creative"   // image/art generation
	CategoryBlockchain = "blockchain" // minting, chain analysis
	CategoryStorage    = "storage"    // pinning, archival
	CategoryData       = "data"       // analysis, curation
	CategoryMarketing  = "marketing"  // copy, campaigns
)

// Categories lists every category in the taxonomy.
var Categories = []string{
	CategoryCreative,
	CategoryBlockchain,
	CategoryStorage,
	CategoryData,
	CategoryMarketing,
}

// IsValidCategory checks if a category is in the taxonomy.
func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// IsValidAgentStatus checks if s is a known agent status.
func IsValidAgentStatus(s string) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Registration Types
// -----------------------------------------------------------------------------

// RegisterAgentRequest is the payload for listing a new agent.
type RegisterAgentRequest struct {
	Slug         string   `json:"slug" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Category     string   `json:"category" binding:"required"`
	Capabilities []string `json:"capabilities"`
	PricePerTask string   `json:"price_per_task" binding:"required"`
	AvatarURL    string   `json:"avatar_url"`
}

// -----------------------------------------------------------------------------
// Query Types
// -----------------------------------------------------------------------------

// AgentQuery filters for listing agents.
type AgentQuery struct {
	Category string // Filter by category
	Status   string // Filter by status
	Search   string // Substring match on name/description
	MaxPrice string // Maximum per-task price
	Sort     string // "rating" (default), "executions", "price"
	Limit    int    // Max results (default 50)
	Offset   int    // Pagination offset
}
