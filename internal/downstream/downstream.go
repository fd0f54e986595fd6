// Package downstream maintains the single persistent connection to the
// downstream tool server. The connection is established once at process
// start; there is no reconnect. A failed call is reported to the caller and
// the connection is left as it is.
package downstream

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/tollgate/internal/tracing"
)

// Config describes how to launch and identify the downstream server.
type Config struct {
	// ServerID is the configured identifier of the server.
	ServerID string

	// Command is the executable serving tools over stdio.
	Command string

	// Args are passed to the command verbatim.
	Args []string

	// Env is added to the launch environment.
	Env map[string]string

	// BearerToken, when set, is injected into the launch environment under
	// BearerEnv.
	BearerToken string

	// BearerEnv is the variable name the bearer token is injected as.
	BearerEnv string

	// BaseEnv is the scrubbed base environment for the subprocess. The
	// caller builds it; credentials never pass through unfiltered.
	BaseEnv []string

	// ClientVersion is reported to the server during initialization.
	ClientVersion string

	// Logger receives connection lifecycle events. Nil uses slog.Default.
	Logger *slog.Logger
}

// rpcClient is the slice of the MCP client the connector uses. Narrowed for
// test substitution.
type rpcClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Connector is the process-lifetime connection to one downstream server.
type Connector struct {
	serverID   string
	client     rpcClient
	logger     *slog.Logger
	serverInfo mcp.Implementation
	closeOnce  sync.Once
	closeErr   error
}

// Connect launches the downstream server and performs the MCP handshake.
// Any failure here is fatal to the caller: a proxy without its downstream
// has nothing to serve.
func Connect(ctx context.Context, cfg Config) (*Connector, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: server %s has no command", ErrConnect, cfg.ServerID)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	env := launchEnv(cfg)
	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: launching %s: %s", ErrConnect, cfg.Command, err)
	}

	conn := &Connector{
		serverID: cfg.ServerID,
		client:   c,
		logger:   logger.With("server", cfg.ServerID),
	}
	if err := conn.handshake(ctx, cfg.ClientVersion); err != nil {
		_ = c.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Connector) handshake(ctx context.Context, version string) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("%w: starting transport: %s", ErrConnect, err)
	}

	if version == "" {
		version = "dev"
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "tollgate",
		Version: version,
	}

	result, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("%w: initialize: %s", ErrConnect, err)
	}
	c.serverInfo = result.ServerInfo
	c.logger.Info("downstream connected",
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version)
	return nil
}

// ServerID returns the configured identifier of the connected server.
func (c *Connector) ServerID() string {
	return c.serverID
}

// ServerInfo returns the name and version the server reported during the
// handshake.
func (c *Connector) ServerInfo() mcp.Implementation {
	return c.serverInfo
}

// ListTools returns the server's tool catalog sorted by name.
func (c *Connector) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: listing tools: %s", ErrCall, err)
	}

	tools := slices.Clone(result.Tools)
	slices.SortFunc(tools, func(a, b mcp.Tool) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return tools, nil
}

// Call forwards one tool invocation verbatim. No retries: a failure is the
// caller's to report.
func (c *Connector) Call(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, span := tracing.Start(ctx, "downstream.call",
		attribute.String("mcp.server", c.serverID),
		attribute.String("mcp.tool", toolName))

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: %s: %s", ErrCall, toolName, err)
		tracing.End(span, err)
		return nil, err
	}
	tracing.End(span, nil)
	return result, nil
}

// Ping probes the connection. Used for health reporting only; a failed ping
// never triggers a reconnect.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %s", ErrCall, err)
	}
	return nil
}

// Close shuts the connection down and reaps the subprocess. Safe to call
// more than once.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.Close()
		c.logger.Info("downstream closed")
	})
	return c.closeErr
}

// launchEnv assembles the subprocess environment: scrubbed base, configured
// entries, then the bearer credential. Later entries win.
func launchEnv(cfg Config) []string {
	env := slices.Clone(cfg.BaseEnv)

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, cfg.Env[k]))
	}

	if cfg.BearerToken != "" {
		name := cfg.BearerEnv
		if name == "" {
			name = "BEARER_TOKEN"
		}
		env = append(env, fmt.Sprintf("%s=%s", name, cfg.BearerToken))
	}
	return env
}
