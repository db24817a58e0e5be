package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webtex/idgen"
)

// Endpoint is a transport-agnostic typed handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// RegisterMCPTool registers an Endpoint as an MCP tool on the given server.
// The decode function extracts the typed request from MCP arguments; a decode
// failure is answered as a tool error, never as a protocol error.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// ChannelCaller sends an encoded method call to a named channel.
type ChannelCaller interface {
	Call(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// InvokeToolName is the MCP tool exposing channel calls.
const InvokeToolName = "webtex_invoke"

type invokeRequest struct {
	Channel string          `json:"channel"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// RegisterInvokeTool exposes every channel of caller as one MCP tool. The
// tool result text is the channel's response envelope.
func RegisterInvokeTool(srv *mcp.Server, caller ChannelCaller, newID idgen.Generator) {
	if newID == nil {
		newID = idgen.Default
	}
	tool := &mcp.Tool{
		Name:        InvokeToolName,
		Description: "Send a method call to a web-view bridge channel and return its response envelope.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel": map[string]any{"type": "string", "description": "Channel name, e.g. webtex or webtex/view/<id>"},
				"method":  map[string]any{"type": "string", "description": "Method name"},
				"args":    map[string]any{"description": "Structured method arguments"},
			},
			"required": []string{"channel", "method"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*invokeRequest)
		payload, err := json.Marshal(struct {
			Method string          `json:"method"`
			Args   json.RawMessage `json:"args,omitempty"`
		}{r.Method, r.Args})
		if err != nil {
			return nil, err
		}
		out, err := caller.Call(ctx, r.Channel, payload)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(out), nil
	}

	decode := func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r invokeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Channel == "" || r.Method == "" {
			return nil, errors.New("channel and method are required")
		}
		return &MCPDecodeResult{
			Request: &r,
			EnrichCtx: func(ctx context.Context) context.Context {
				return WithRequestID(WithTransport(ctx, "mcp"), newID())
			},
		}, nil
	}

	RegisterMCPTool(srv, tool, endpoint, decode)
}
