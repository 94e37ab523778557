package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/personality"
	"github.com/kalambet/bolla/internal/storage"
)

func newTestMCPDeps(t *testing.T) (Deps, *storage.Store, *mockResponder) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pm := personality.NewManager(store)
	pm.Seed(context.Background())
	resp := &mockResponder{}
	return Deps{
		Responder:     resp,
		Router:        &mockDispatcher{},
		Memories:      memory.NewService(store, splitExtractor{}),
		Personality:   pm,
		Conversations: memory.NewShortTerm(10),
		Jobs:          store,
	}, store, resp
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Respond(t *testing.T) {
	deps, _, resp := newTestMCPDeps(t)

	result, err := mcpRespond(deps)(context.Background(), makeCallToolRequest("respond", map[string]interface{}{
		"message": "oi",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "resposta: oi" {
		t.Errorf("text = %q", got)
	}
	if rc := resp.rcs[0]; rc.ConversationID != "mcp" || rc.Source != "mcp" {
		t.Errorf("request context = %+v", rc)
	}
}

func TestMCPTool_RespondMissingMessage(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, _ := mcpRespond(deps)(context.Background(), makeCallToolRequest("respond", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPTool_RememberAndRecall(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpRemember(deps)(ctx, makeCallToolRequest("remember", map[string]interface{}{
		"text": "Lucas prefere neovim. Lucas toma café sem açúcar.",
	}))
	if result.IsError {
		t.Fatalf("remember error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.HasPrefix(text, "Stored 2 memories") {
		t.Errorf("remember text = %q", text)
	}

	result, _ = mcpRecall(deps)(ctx, makeCallToolRequest("recall", map[string]interface{}{
		"query": "café",
		"limit": float64(3),
	}))
	if result.IsError {
		t.Fatalf("recall error: %s", toolText(t, result))
	}
	var ms []MemoryJSON
	if err := json.Unmarshal([]byte(toolText(t, result)), &ms); err != nil {
		t.Fatalf("recall output: %v", err)
	}
	if len(ms) != 1 || !strings.Contains(ms[0].Content, "café") || ms[0].Source != "mcp" {
		t.Errorf("recall = %+v", ms)
	}
}

func TestMCPTool_RememberAsync(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpRemember(deps)(ctx, makeCallToolRequest("remember", map[string]interface{}{
		"text":  "Lucas vai a Lisboa em maio",
		"async": true,
	}))
	if result.IsError || !strings.HasPrefix(toolText(t, result), "Queued job ") {
		t.Fatalf("result = %+v", result)
	}
	id := strings.TrimPrefix(toolText(t, result), "Queued job ")
	if _, err := store.GetJob(ctx, id); err != nil {
		t.Errorf("GetJob(%s): %v", id, err)
	}
}

func TestMCPTool_RememberBadCategory(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, _ := mcpRemember(deps)(context.Background(), makeCallToolRequest("remember", map[string]interface{}{
		"text":     "x",
		"category": "gossip",
	}))
	if !result.IsError {
		t.Error("expected tool error for unknown category")
	}
}

func TestMCPTool_SaveMemory(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	result, _ := mcpSaveMemory(deps)(context.Background(), makeCallToolRequest("save_memory", map[string]interface{}{
		"content":  "Lucas odeia reuniões longas",
		"category": "opinion",
	}))
	if result.IsError {
		t.Fatalf("save error: %s", toolText(t, result))
	}
	ms, _ := store.MemoriesByCategory(context.Background(), "opinion", 10)
	if len(ms) != 1 || ms[0].Content != "Lucas odeia reuniões longas" {
		t.Errorf("stored = %+v", ms)
	}
}

func TestMCPTool_SetPersonality(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpSetPersonality(deps)(ctx, makeCallToolRequest("set_personality", map[string]interface{}{
		"trait": "humor_atual",
		"value": "Empolgado",
	}))
	if result.IsError {
		t.Fatalf("set error: %s", toolText(t, result))
	}

	contents, err := mcpResourcePersonality(deps)(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: personalityURI},
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "Empolgado") {
		t.Errorf("personality resource missing new mood:\n%s", text)
	}
}
