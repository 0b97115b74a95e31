package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Agent Bazaar tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("agent-bazaar", "1.0.0")
	client := NewBazaarClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolBrowseAgents, h.HandleBrowseAgents)
	s.AddTool(ToolGetAgent, h.HandleGetAgent)
	s.AddTool(ToolGetQuote, h.HandleGetQuote)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)

	return s
}
