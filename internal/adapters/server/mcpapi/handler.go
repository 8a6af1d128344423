// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/kantime/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing board reads, plus
// task creation when reader implements common.TaskCreator.
func NewHandler(cfg Config, reader common.BoardReader) (*Handler, error) {
	if reader == nil {
		return nil, fmt.Errorf("board reader is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerReadTools(mcpSrv, reader)
	if creator, ok := reader.(common.TaskCreator); ok {
		registerCreateTaskTool(mcpSrv, creator)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "kantime"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerReadTools registers the project, task, timer and activity tools.
func registerReadTools(srv *mcpserver.MCPServer, reader common.BoardReader) {
	srv.AddTool(
		mcp.NewTool(
			"kantime.list_projects",
			mcp.WithDescription("List every project."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projects, err := reader.ListProjects(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_projects", map[string]any{"projects": projects})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kantime.list_tasks",
			mcp.WithDescription("List one project's tasks with the board's filter and sort."),
			mcp.WithString("project", mcp.Description("Project id, slug or name (defaults to the default project)")),
			mcp.WithString("search", mcp.Description("Case-insensitive title/description substring")),
			mcp.WithString("priority", mcp.Description("Priority filter"), mcp.Enum("all", "high", "medium", "low")),
			mcp.WithString("status", mcp.Description("Status filter"), mcp.Enum("all", "todo", "in_progress", "completed")),
			mcp.WithString("sort", mcp.Description("Sort key"), mcp.Enum("created", "updated", "priority", "timeSpent", "title")),
			mcp.WithString("order", mcp.Description("Sort order"), mcp.Enum("asc", "desc")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := reader.ListTasks(ctx, common.ListTasksRequest{
				Project:   req.GetString("project", ""),
				Search:    req.GetString("search", ""),
				Priority:  req.GetString("priority", ""),
				Status:    req.GetString("status", ""),
				SortBy:    req.GetString("sort", ""),
				SortOrder: req.GetString("order", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_tasks", list)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kantime.list_timers",
			mcp.WithDescription("List running timers with their elapsed time."),
			mcp.WithString("project", mcp.Description("Optional project id, slug or name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			timers, err := reader.ListTimers(ctx, req.GetString("project", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_timers", map[string]any{"timers": timers})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kantime.list_activity",
			mcp.WithDescription("List recent change events for one project, newest first."),
			mcp.WithString("project", mcp.Description("Project id, slug or name (defaults to the default project)")),
			mcp.WithNumber("limit", mcp.Description("Maximum events to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			events, err := reader.ListActivity(ctx, common.ListActivityRequest{
				Project: req.GetString("project", ""),
				Limit:   req.GetInt("limit", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_activity", map[string]any{"events": events})
		},
	)
}

// registerCreateTaskTool registers the optional `kantime.create_task` tool.
func registerCreateTaskTool(srv *mcpserver.MCPServer, creator common.TaskCreator) {
	srv.AddTool(
		mcp.NewTool(
			"kantime.create_task",
			mcp.WithDescription("Append a new task to the To Do column."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("project", mcp.Description("Project id, slug or name (defaults to the default project)")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithString("priority", mcp.Description("Priority"), mcp.Enum("high", "medium", "low")),
			mcp.WithNumber("estimated_hours", mcp.Description("Optional estimate in hours")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in := common.CreateTaskRequest{
				Project:     req.GetString("project", ""),
				Title:       title,
				Description: req.GetString("description", ""),
				Priority:    req.GetString("priority", ""),
			}
			if hours, ok := req.GetArguments()["estimated_hours"].(float64); ok {
				in.EstimatedHours = &hours
			}
			task, err := creator.CreateTask(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_task", task)
		},
	)
}

// jsonResult encodes one structured tool payload.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps adapter errors onto stable tool error prefixes.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("not_implemented: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
