package scout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/torscout/scout/internal/browser/browsertest"
)

var testImpl = &mcp.Implementation{Name: "torscout-test", Version: "0.1.0"}

// mcpSession registers the tools of s and returns a connected client session.
func mcpSession(t *testing.T, s *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns the first text content and whether the
// tool reported an error.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_Search(t *testing.T) {
	session := mcpSession(t, testService(t, nil, defaultAdapters()...))

	text, isErr := callTool(t, session, "torrent_search", map[string]any{"query": "debian", "min_seeders": 20})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var rs ResultSet
	if err := json.Unmarshal([]byte(text), &rs); err != nil {
		t.Fatalf("decode: %v\n%s", err, text)
	}
	if len(rs.Results) != 1 || rs.Results[0].Seeders != 90 {
		t.Fatalf("results = %+v", rs.Results)
	}
	if len(rs.Sources) != 2 {
		t.Fatalf("sources = %+v", rs.Sources)
	}
	if !strings.Contains(text, `"leechers":null`) {
		t.Fatalf("unknown counts must encode as null: %s", text)
	}
}

func TestMCP_SearchInvalidQuery(t *testing.T) {
	session := mcpSession(t, testService(t, nil, defaultAdapters()...))

	text, isErr := callTool(t, session, "torrent_search", map[string]any{"query": " "})
	if !isErr || !strings.Contains(text, "invalid query") {
		t.Fatalf("got isErr=%v text=%q", isErr, text)
	}
}

func TestMCP_SearchSessionUnavailable(t *testing.T) {
	prov := browsertest.NewProvisioner(nil)
	prov.CreateErr = errors.New("no chrome")
	session := mcpSession(t, testService(t, prov, defaultAdapters()...))

	text, isErr := callTool(t, session, "torrent_search", map[string]any{"query": "x"})
	if !isErr || !strings.Contains(text, "browser") {
		t.Fatalf("got isErr=%v text=%q", isErr, text)
	}
}

func TestMCP_Sources(t *testing.T) {
	session := mcpSession(t, testService(t, nil, defaultAdapters()...))

	text, isErr := callTool(t, session, "torrent_sources", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var out struct {
		Sources []SourceInfo `json:"sources"`
		Pool    PoolStats    `json:"pool"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Sources) != 2 || out.Sources[0].ID != "alpha" || out.Pool.Size != 2 {
		t.Fatalf("out = %+v", out)
	}
}
