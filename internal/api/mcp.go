package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/bolla/internal/rag"
	"github.com/kalambet/bolla/internal/training"
)

const personalityURI = "bolla://personality"

// NewMCPServer creates an MCP server with the bolla tools and resources
// registered.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"bolla",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bolla: conversational agent with long-term memory. Use recall before asking the user something they may have said already."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Answer a message as Bolla, using long-term memories and the conversation's recent history."),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue (default \"mcp\")")),
		),
		mcpRespond(deps),
	)

	s.AddTool(
		mcp.NewTool("remember",
			mcp.WithDescription("Extract durable facts from text and store them as long-term memories."),
			mcp.WithString("text", mcp.Description("Text to learn from"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Force a category: preference, fact, opinion, event or general")),
			mcp.WithBoolean("async", mcp.Description("Queue the extraction instead of waiting for it")),
		),
		mcpRemember(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Search long-term memories."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("save_memory",
			mcp.WithDescription("Store a piece of text verbatim as one long-term memory."),
			mcp.WithString("content", mcp.Description("The text to store"), mcp.Required()),
			mcp.WithString("category", mcp.Description("preference, fact, opinion, event or general (default general)")),
		),
		mcpSaveMemory(deps),
	)

	s.AddTool(
		mcp.NewTool("set_personality",
			mcp.WithDescription("Update one of Bolla's personality traits."),
			mcp.WithString("trait", mcp.Description("Trait name (e.g. humor_atual)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpSetPersonality(deps),
	)

	s.AddResource(
		mcp.NewResource(
			personalityURI,
			"Personality",
			mcp.WithResourceDescription("Bolla's current personality prompt"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourcePersonality(deps),
	)

	return s
}

func mcpRespond(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcpError("message is required"), nil
		}
		conv := req.GetString("conversation_id", training.SourceMCP)

		resp, err := deps.Responder.Respond(ctx, message, rag.RequestContext{
			ConversationID: conv,
			Source:         training.SourceMCP,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("respond failed: %v", err)), nil
		}
		return mcpText(resp.Text), nil
	}
}

func mcpRemember(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		cat, err := parseCategory(req.GetString("category", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := remember(ctx, deps, text, training.SourceMCP, cat, req.GetBool("async", false))
		if err != nil {
			return mcpError(fmt.Sprintf("remember failed: %v", err)), nil
		}
		switch {
		case res.Status == "queued":
			return mcpText(fmt.Sprintf("Queued job %s", res.JobID)), nil
		case len(res.Memories) == 0:
			return mcpText("Nothing worth remembering found"), nil
		}
		lines := make([]string, len(res.Memories))
		for i, m := range res.Memories {
			lines[i] = fmt.Sprintf("- [%s] %s", m.Category, m.Content)
		}
		return mcpText(fmt.Sprintf("Stored %d memories:\n%s", len(lines), strings.Join(lines, "\n"))), nil
	}
}

func mcpRecall(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		ms, err := deps.Memories.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		b, err := json.Marshal(memoriesJSON(ms))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSaveMemory(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil || strings.TrimSpace(content) == "" {
			return mcpError("content is required"), nil
		}
		cat, err := parseCategory(req.GetString("category", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		m, err := deps.Memories.SaveRaw(ctx, content, training.SourceMCP, cat)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored memory %d (%s)", m.ID, m.Category)), nil
	}
}

func mcpSetPersonality(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		trait, err := req.RequireString("trait")
		if err != nil {
			return mcpError("trait is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Personality.Set(ctx, trait, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set trait: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", trait, value)), nil
	}
}

func mcpResourcePersonality(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		prompt, err := deps.Personality.SystemPrompt(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get personality: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     prompt,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
