package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// MCPClient is the part of an MCP client session the bridge needs.
// *mcpclient.Client satisfies it.
type MCPClient interface {
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
}

// MCPTool exposes one tool of an MCP server as a local Tool.
type MCPTool struct {
	client MCPClient
	remote string
	def    Definition
}

// NewMCPTool adapts t. A non-empty prefix is joined to the registered name
// as "prefix__name" to keep servers from colliding.
func NewMCPTool(client MCPClient, t mcpgo.Tool, prefix string) *MCPTool {
	name := t.Name
	if prefix != "" {
		name = prefix + "__" + t.Name
	}
	def := Definition{
		Name:        name,
		Description: t.Description,
		InputSchema: mcpInputSchema(t.InputSchema),
	}
	ann := t.Annotations
	if ann.ReadOnlyHint != nil || ann.DestructiveHint != nil || ann.IdempotentHint != nil || ann.OpenWorldHint != nil {
		def.Annotations = &Annotations{
			ReadOnly:    boolValue(ann.ReadOnlyHint),
			Destructive: boolValue(ann.DestructiveHint),
			Idempotent:  boolValue(ann.IdempotentHint),
			OpenWorld:   boolValue(ann.OpenWorldHint),
		}
	}
	return &MCPTool{client: client, remote: t.Name, def: def}
}

// Definition implements Tool.
func (t *MCPTool) Definition() Definition { return t.def }

// Call implements Tool. Remote errors flagged by the server come back as
// error-flagged output; transport failures are execution failures.
func (t *MCPTool) Call(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error) {
	args, err := ParseArgs(input)
	if err != nil {
		return nil, InvalidInput(t.def.Name, err.Error())
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.remote
	req.Params.Arguments = args

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, TimedOut(t.def.Name, fmt.Sprintf("MCP tool %q timed out", t.def.Name))
		}
		if errors.Is(err, context.Canceled) {
			return nil, Cancelled(t.def.Name)
		}
		return nil, ExecutionFailed(t.def.Name, err)
	}

	text := mcpText(result)
	if result.IsError {
		return ErrorText(text), nil
	}
	return Text(text), nil
}

// LoadMCPTools lists the server's tools and registers each one.
func LoadMCPTools(ctx context.Context, r *Registry, client MCPClient, prefix string) ([]string, error) {
	res, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		bridged := NewMCPTool(client, t, prefix)
		r.Register(bridged)
		names = append(names, bridged.def.Name)
	}
	return names, nil
}

// ConnectMCPStdio launches an MCP server as a subprocess and completes the
// initialize handshake.
func ConnectMCPStdio(ctx context.Context, command string, env []string, args ...string) (*mcpclient.Client, error) {
	c, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("starting MCP server %q: %w", command, err)
	}
	init := mcpgo.InitializeRequest{}
	init.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcpgo.Implementation{Name: "neuron", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, init); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initializing MCP server %q: %w", command, err)
	}
	return c, nil
}

func mcpInputSchema(schema mcpgo.ToolInputSchema) map[string]interface{} {
	m := map[string]interface{}{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}

func mcpText(result *mcpgo.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
