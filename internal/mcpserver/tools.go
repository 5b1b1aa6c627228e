// Package mcpserver wires the tool layer to a transport: MCP tool calls over
// streamable-HTTP (mark3labs/mcp-go), and a small gin-based admin surface for
// OAuth, re-embedding, health, and metrics.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chirino/memory-mcp/internal/security"
	"github.com/chirino/memory-mcp/internal/tools"
)

// registerTools adds the nine memory tools to s, closing over deps.
func registerTools(s *server.MCPServer, deps *tools.Deps) {
	s.AddTool(mcp.NewTool("store_memory",
		mcp.WithDescription("Store a new memory with optional labels and source"),
		mcp.WithString("content", mcp.Required(), mcp.Description("The memory content to store")),
		mcp.WithString("labels", mcp.Description("Comma-separated labels")),
		mcp.WithString("source", mcp.Description("Where this memory came from")),
	), wrap("store_memory", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.StoreMemory(ctx, deps, tools.StoreMemoryParams{
			Content: stringArg(args, "content"),
			Labels:  stringArg(args, "labels"),
			Source:  stringArg(args, "source"),
		})
	}))

	s.AddTool(mcp.NewTool("retrieve_memories",
		mcp.WithDescription("Retrieve memories by semantic search or recency, filtered by labels/source"),
		mcp.WithString("query", mcp.Description("Free text to semantically search for")),
		mcp.WithString("labels", mcp.Description("Comma-separated labels, prefix ! to exclude")),
		mcp.WithString("source", mcp.Description("Source filter, prefix ! to exclude")),
		mcp.WithNumber("num_results", mcp.Description("Maximum number of results, default 5")),
	), wrap("retrieve_memories", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.RetrieveMemories(ctx, deps, tools.RetrieveMemoriesParams{
			Query:      stringArg(args, "query"),
			Labels:     stringArg(args, "labels"),
			Source:     stringArg(args, "source"),
			NumResults: int(numberArg(args, "num_results", defaultNumResults)),
		})
	}))

	s.AddTool(mcp.NewTool("get_memory",
		mcp.WithDescription("Fetch a single memory by id"),
		mcp.WithNumber("memory_id", mcp.Required(), mcp.Description("The memory's client-facing id")),
	), wrap("get_memory", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.GetMemory(ctx, deps, tools.GetMemoryParams{MemoryID: int64(numberArg(args, "memory_id", 0))})
	}))

	s.AddTool(mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete a memory by id"),
		mcp.WithNumber("memory_id", mcp.Required(), mcp.Description("The memory's client-facing id")),
	), wrap("delete_memory", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.DeleteMemory(ctx, deps, tools.DeleteMemoryParams{MemoryID: int64(numberArg(args, "memory_id", 0))})
	}))

	s.AddTool(mcp.NewTool("add_labels",
		mcp.WithDescription("Add labels to a memory"),
		mcp.WithNumber("memory_id", mcp.Required(), mcp.Description("The memory's client-facing id")),
		mcp.WithString("labels", mcp.Required(), mcp.Description("Comma-separated labels to add")),
	), wrap("add_labels", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.AddLabels(ctx, deps, tools.LabelsParams{
			MemoryID: int64(numberArg(args, "memory_id", 0)),
			Labels:   stringArg(args, "labels"),
		})
	}))

	s.AddTool(mcp.NewTool("del_labels",
		mcp.WithDescription("Remove labels from a memory"),
		mcp.WithNumber("memory_id", mcp.Required(), mcp.Description("The memory's client-facing id")),
		mcp.WithString("labels", mcp.Required(), mcp.Description("Comma-separated labels to remove")),
	), wrap("del_labels", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.DelLabels(ctx, deps, tools.LabelsParams{
			MemoryID: int64(numberArg(args, "memory_id", 0)),
			Labels:   stringArg(args, "labels"),
		})
	}))

	s.AddTool(mcp.NewTool("random_memory",
		mcp.WithDescription("Fetch one randomly chosen memory matching a filter"),
		mcp.WithString("labels", mcp.Description("Comma-separated labels, prefix ! to exclude")),
		mcp.WithString("source", mcp.Description("Source filter, prefix ! to exclude")),
	), wrap("random_memory", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.RandomMemory(ctx, deps, tools.RandomMemoryParams{
			Labels: stringArg(args, "labels"),
			Source: stringArg(args, "source"),
		})
	}))

	s.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Count memories matching a filter"),
		mcp.WithString("labels", mcp.Description("Comma-separated labels, prefix ! to exclude")),
		mcp.WithString("source", mcp.Description("Source filter, prefix ! to exclude")),
	), wrap("memory_stats", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.MemoryStats(ctx, deps, tools.MemoryStatsParams{
			Labels: stringArg(args, "labels"),
			Source: stringArg(args, "source"),
		})
	}))

	s.AddTool(mcp.NewTool("trending_labels",
		mcp.WithDescription("Rank labels by recency-weighted frequency"),
		mcp.WithNumber("days", mcp.Description("Lookback window in days, default 30")),
		mcp.WithNumber("limit", mcp.Description("Maximum labels to return, default 10")),
	), wrap("trending_labels", func(ctx context.Context, args map[string]any) tools.Result {
		return tools.TrendingLabels(ctx, deps, tools.TrendingLabelsParams{
			Days:  int(numberArg(args, "days", 30)),
			Limit: int(numberArg(args, "limit", 10)),
		})
	}))
}

const defaultNumResults = 5

// wrap adapts a tools.Result-returning handler to mcp-go's CallToolRequest
// signature, recording Prometheus counters and encoding the result as the
// tool's single text content block.
func wrap(name string, fn func(ctx context.Context, args map[string]any) tools.Result) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result := fn(ctx, request.GetArguments())
		outcome := "ok"
		if _, isErr := result["error"]; isErr {
			outcome = "error"
		}
		if security.ToolCallsTotal != nil {
			security.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
			security.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}

		encoded, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func numberArg(args map[string]any, key string, def float64) float64 {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}
