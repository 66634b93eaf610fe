// CLAUDE:SUMMARY Registers the torrent_search and torrent_sources MCP tools.
package scout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/torscout/idgen"
	"github.com/hazyhaar/torscout/kit"
)

// RegisterMCP registers torscout tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearchTool(srv)
	s.registerSourcesTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// toolError carries the client-facing text for query-level failures.
type toolError struct {
	err error
	msg string
}

func (e *toolError) Error() string       { return e.err.Error() }
func (e *toolError) Unwrap() error       { return e.err }
func (e *toolError) ToolMessage() string { return e.msg }

// --- search ---

type searchRequest struct {
	Query      string   `json:"query"`
	Category   string   `json:"category,omitempty"`
	MinSeeders int      `json:"min_seeders,omitempty"`
	MaxAgeDays int      `json:"max_age_days,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

func (r *searchRequest) query() Query {
	return Query{
		Text: r.Query,
		Filters: Filters{
			Category:   r.Category,
			MinSeeders: r.MinSeeders,
			MaxAge:     time.Duration(r.MaxAgeDays) * 24 * time.Hour,
			Limit:      r.Limit,
		},
		Sources: r.Sources,
	}
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	items := map[string]any{"type": "string"}
	if len(s.adapters) > 0 {
		ids := make([]any, 0, len(s.adapters))
		for _, a := range s.adapters {
			ids = append(ids, a.ID())
		}
		items["enum"] = ids
	}

	tool := &mcp.Tool{
		Name: "torrent_search",
		Description: "Search several torrent index sites at once. Returns deduplicated results ranked by seeders " +
			"with a per-site status (ok, timed-out, blocked, extraction-failed...). Partial results are normal.",
		InputSchema: inputSchema(map[string]any{
			"query":        map[string]any{"type": "string", "description": "Free-text search, at most 256 characters"},
			"category":     map[string]any{"type": "string", "description": "Keep results whose site category contains this text (e.g. anime, movies)"},
			"min_seeders":  map[string]any{"type": "integer", "minimum": 0, "description": "Drop results with fewer seeders"},
			"max_age_days": map[string]any{"type": "integer", "minimum": 0, "description": "Drop results published earlier than this many days ago"},
			"limit":        map[string]any{"type": "integer", "minimum": 0, "description": "Max results (default from config)"},
			"sources":      map[string]any{"type": "array", "items": items, "description": "Restrict to these site ids"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		rs, err := s.Search(ctx, r.query())
		switch {
		case errors.Is(err, ErrPoolExhausted):
			return nil, &toolError{err: err, msg: "all sites waited too long for a browser session; the service is busy, retry shortly"}
		case errors.Is(err, ErrSessionUnavailable):
			return nil, &toolError{err: err, msg: "no browser session could be started; check the browser installation"}
		case err != nil:
			return nil, err
		}
		return rs, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r searchRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithRequestID(ctx, idgen.Query()) },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.WithRequestLog(s.logger, "torrent_search")(endpoint), decode)
}

// --- sources ---

func (s *Service) registerSourcesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "torrent_sources",
		Description: "List the configured torrent sites, whether each is enabled, and its circuit breaker state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"sources": s.Sources(), "pool": s.PoolStats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
