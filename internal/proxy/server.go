package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverInstructions = `This server proxies a downstream MCP tool server. Some tools require
out-of-band approval: calling one returns structuredContent.status
"PENDING_APPROVAL_POLL" with a taskId instead of a result. Poll
checkTaskStatus with that taskId until the final result arrives. Use
listHighRiskTools to see which tools are gated. Blocked tools always fail.`

// ServerConfig assembles the caller-facing MCP server.
type ServerConfig struct {
	// Name and Version identify the proxy in the initialize handshake.
	Name    string
	Version string

	Gate   *Gate
	Logger *slog.Logger
}

// Server binds the gate to an mcp-go server: the downstream catalog plus
// the two synthetic tools, each routed through the gate.
type Server struct {
	gate   *Gate
	mcp    *server.MCPServer
	logger *slog.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

// NewServer builds the MCP server and registers the initial catalog. The
// downstream list must succeed here; a failure is fatal at startup.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Gate == nil {
		return nil, errors.New("proxy: gate is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "tollgate"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		gate: cfg.Gate,
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(serverInstructions),
		),
		logger:     logger,
		registered: make(map[string]struct{}),
	}

	synthetic := syntheticTools()
	s.mcp.AddTool(synthetic[0], s.handleCheckTaskStatus)
	s.mcp.AddTool(synthetic[1], s.handleListHighRiskTools)

	if err := s.RefreshCatalog(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// MCP exposes the underlying server for transport mounting.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// RefreshCatalog re-reads the downstream tool list and reconciles the
// registered gated tools. The synthetic entries are never touched. Safe to
// call while serving; mcp-go emits list_changed to connected callers.
func (s *Server) RefreshCatalog(ctx context.Context) error {
	tools, err := s.gate.DownstreamTools(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if tool.Name == ToolCheckTaskStatus || tool.Name == ToolListHighRiskTools {
			s.logger.Warn("downstream tool shadows a synthetic name, skipped", "tool", tool.Name)
			continue
		}
		next[tool.Name] = struct{}{}
	}

	var removed []string
	for name := range s.registered {
		if _, keep := next[name]; !keep {
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		s.mcp.DeleteTools(removed...)
		s.logger.Info("downstream tools removed from catalog", "count", len(removed))
	}

	for _, tool := range tools {
		if _, keep := next[tool.Name]; !keep {
			continue
		}
		s.mcp.AddTool(tool, s.gatedHandler(tool.Name))
	}
	s.registered = next

	s.logger.Info("catalog registered", "downstream_tools", len(next))
	return nil
}

// gatedHandler routes one downstream tool through the gate.
func (s *Server) gatedHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.gate.CallTool(ctx, toolName, req.GetArguments(), s.notifier(req)), nil
	}
}

// notifier binds the caller's progress token, when present, to the single
// pending-approval notification.
func (s *Server) notifier(req mcp.CallToolRequest) Notifier {
	meta := req.Params.Meta
	if meta == nil || meta.ProgressToken == nil {
		return nil
	}
	token := meta.ProgressToken

	return func(ctx context.Context, taskID string) {
		srv := server.ServerFromContext(ctx)
		if srv == nil {
			return
		}
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      10,
			"total":         100,
			"message":       fmt.Sprintf("Approval requested. Poll %s with taskId %s.", ToolCheckTaskStatus, taskID),
		})
		if err != nil {
			s.logger.Warn("progress notification failed", "task", taskID, "error", err)
		}
	}
}

func (s *Server) handleCheckTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	taskID, _ := args["taskId"].(string)
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return mcp.NewToolResultError("taskId is required"), nil
	}
	return s.gate.CheckTaskStatus(ctx, taskID), nil
}

func (s *Server) handleListHighRiskTools(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.gate.HighRiskListing(), nil
}
