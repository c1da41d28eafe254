package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	admin "github.com/tealbridge/feishu-assistant/internal/mcp"
)

// AssistantMCPServer exposes the gateway's moderation and transcript admin
// surface as MCP tools, backed by the gateway's local HTTP API.
type AssistantMCPServer struct {
	server *mcp.Server
	client *admin.Client
}

// NewServer creates a new assistant MCP server talking to the given admin API
// base URL.
func NewServer(apiBaseURL string) *AssistantMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "assistant-admin",
		Version: "v1.0.0",
	}, nil)

	s := &AssistantMCPServer{
		server: server,
		client: admin.NewClient(apiBaseURL),
	}
	s.registerTools()
	return s
}

// registerTools registers all admin MCP tools.
func (s *AssistantMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "filter_add",
		Description: "Register a moderation filter term for a chat scope. Responses matching any registered term are withheld in that scope. Leave scope empty for the global scope.",
	}, s.handleFilterAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "filter_remove",
		Description: "Unregister a moderation filter term from a chat scope. Leave scope empty for the global scope.",
	}, s.handleFilterRemove)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "filter_list",
		Description: "List moderation filter terms. With a scope, lists that scope's terms; without one, lists every scope.",
	}, s.handleFilterList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_history",
		Description: "Fetch the most recent turns of a conversation's stored transcript.",
	}, s.handleGetHistory)
}

// FilterAddInput is the input for the filter_add tool.
type FilterAddInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"description=Chat scope id; empty for the global scope"`
	Term  string `json:"term" jsonschema:"description=The term to filter, matched case-insensitively on word boundaries"`
}

// FilterAddOutput is the output for the filter_add tool.
type FilterAddOutput struct {
	Added bool   `json:"added"`
	Error string `json:"error,omitempty"`
}

func (s *AssistantMCPServer) handleFilterAdd(ctx context.Context, req *mcp.CallToolRequest, input FilterAddInput) (*mcp.CallToolResult, FilterAddOutput, error) {
	added, err := s.client.AddFilter(input.Scope, input.Term)
	if err != nil {
		return nil, FilterAddOutput{Error: err.Error()}, nil
	}
	return nil, FilterAddOutput{Added: added}, nil
}

// FilterRemoveInput is the input for the filter_remove tool.
type FilterRemoveInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"description=Chat scope id; empty for the global scope"`
	Term  string `json:"term" jsonschema:"description=The term to unregister"`
}

// FilterRemoveOutput is the output for the filter_remove tool.
type FilterRemoveOutput struct {
	Removed bool   `json:"removed"`
	Error   string `json:"error,omitempty"`
}

func (s *AssistantMCPServer) handleFilterRemove(ctx context.Context, req *mcp.CallToolRequest, input FilterRemoveInput) (*mcp.CallToolResult, FilterRemoveOutput, error) {
	removed, err := s.client.RemoveFilter(input.Scope, input.Term)
	if err != nil {
		return nil, FilterRemoveOutput{Error: err.Error()}, nil
	}
	return nil, FilterRemoveOutput{Removed: removed}, nil
}

// FilterListInput is the input for the filter_list tool.
type FilterListInput struct {
	Scope    *string `json:"scope,omitempty" jsonschema:"description=Chat scope id; empty string for the global scope; omit to list every scope"`
	AllScope bool    `json:"all_scopes,omitempty" jsonschema:"description=List every scope regardless of the scope field"`
}

// FilterListOutput is the output for the filter_list tool.
type FilterListOutput struct {
	Filters []string            `json:"filters,omitempty"`
	Scopes  map[string][]string `json:"scopes,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (s *AssistantMCPServer) handleFilterList(ctx context.Context, req *mcp.CallToolRequest, input FilterListInput) (*mcp.CallToolResult, FilterListOutput, error) {
	if input.AllScope || input.Scope == nil {
		scopes, err := s.client.ListAllFilters()
		if err != nil {
			return nil, FilterListOutput{Error: err.Error()}, nil
		}
		return nil, FilterListOutput{Scopes: scopes}, nil
	}

	filters, err := s.client.ListFilters(*input.Scope)
	if err != nil {
		return nil, FilterListOutput{Error: err.Error()}, nil
	}
	return nil, FilterListOutput{Filters: filters}, nil
}

// GetHistoryInput is the input for the get_history tool.
type GetHistoryInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"description=The chat id whose transcript to fetch"`
	Limit          int    `json:"limit,omitempty" jsonschema:"description=Maximum number of turns to return (default 20)"`
}

// GetHistoryOutput is the output for the get_history tool.
type GetHistoryOutput struct {
	Turns []admin.Turn `json:"turns"`
	Error string       `json:"error,omitempty"`
}

func (s *AssistantMCPServer) handleGetHistory(ctx context.Context, req *mcp.CallToolRequest, input GetHistoryInput) (*mcp.CallToolResult, GetHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	turns, err := s.client.GetHistory(input.ConversationID, limit)
	if err != nil {
		return nil, GetHistoryOutput{Error: err.Error()}, nil
	}
	return nil, GetHistoryOutput{Turns: turns}, nil
}

// Run starts the MCP server with stdio transport.
func (s *AssistantMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
