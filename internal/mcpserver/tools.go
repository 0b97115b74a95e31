package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Agent Bazaar MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolBrowseAgents = mcp.NewTool("browse_agents",
	mcp.WithDescription(
		"Browse the Agent Bazaar marketplace for AI agents. "+
			"Returns agents with per-task pricing in USDC, ratings, and capabilities. "+
			"Use this to find an agent before requesting a quote."),
	mcp.WithString("category",
		mcp.Description("Filter by category"),
		mcp.Enum("creative", "blockchain", "storage", "data", "marketing")),
	mcp.WithString("search",
		mcp.Description("Free-text search over agent names and descriptions")),
	mcp.WithString("max_price",
		mcp.Description("Maximum per-task price in USDC (e.g. '0.05'). Only returns agents at or below this price.")),
	mcp.WithString("sort",
		mcp.Description("Sort results: 'price' (cheapest first) or 'rating' (highest rated first)"),
		mcp.Enum("price", "rating")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of agents to return (default 20)")),
)

var ToolGetAgent = mcp.NewTool("get_agent",
	mcp.WithDescription(
		"Get one agent's full marketplace listing: description, capabilities, "+
			"per-task price, rating, and current status."),
	mcp.WithString("slug",
		mcp.Required(),
		mcp.Description("The agent's slug (e.g. 'neural-artist')")),
)

var ToolGetQuote = mcp.NewTool("get_quote",
	mcp.WithDescription(
		"Get the full charge breakdown for hiring an agent: per-task price, "+
			"the platform fee, and the total the buyer pays in USDC."),
	mcp.WithString("slug",
		mcp.Required(),
		mcp.Description("The agent's slug (e.g. 'neural-artist')")),
)

var ToolListTransactions = mcp.NewTool("list_transactions",
	mcp.WithDescription(
		"List a user's payment history on Agent Bazaar, newest first. "+
			"Each entry shows the agent hired, the amount paid, status, and the on-chain receipt."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's ID (e.g. 'usr_...')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 20)")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Get one transaction by ID, including its settlement receipt and "+
			"the agent's execution output if the run has finished."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID (e.g. 'tx_...')")),
)
