// Package app provides the shared entry point for the tollgate binary and
// for custom binaries composed by xtollgate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/tollgate/internal/bootstrap"
	"github.com/flemzord/tollgate/internal/config"
	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/proxy"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/tracing"
)

const shutdownGrace = 10 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Server overrides the configured default downstream server id
	// (the positional argument of the serve command).
	Server string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// BuildHash is the SHA-256 hash of the compiled plugin list, injected by
	// xtollgate via ldflags. When non-empty, SIGHUP checks the config's
	// plugin list against the compiled set and triggers a rebuild + re-exec
	// when they diverge.
	BuildHash string
}

// Run loads configuration, starts all modules, connects the downstream
// server, and serves the proxy until a shutdown signal arrives or the
// caller disconnects. The downstream connection is fixed for the process
// lifetime; configuration changes take effect on restart.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("app: create data directory %s: %w", dataDir, err)
	}

	// Security foundation: every secret known at config time is registered
	// before the first log line, so the redactor masks it everywhere.
	credStore := security.NewCredentialStore()
	seedCredentials(credStore, cfg)
	redactor := security.NewRedactor()
	redactor.SyncCredentials(credStore)

	// Logs go to stderr; stdout may carry the MCP stdio stream.
	innerHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor))

	auditFile, err := os.OpenFile(filepath.Join(dataDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("app: open audit log: %w", err)
	}
	defer func() { _ = auditFile.Close() }()
	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditFile,
		Redactor: redactor,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var traceCfg tracing.Config
	if cfg.Tracing != nil {
		traceCfg = tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Insecure:    cfg.Tracing.Insecure,
		}
	}
	flushTraces, err := tracing.Init(ctx, traceCfg, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer flushCancel()
		_ = flushTraces(flushCtx)
	}()

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", auditLogger)
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	rt, err := wireProxy(ctx, appCtx, cfg, params, credStore, auditLogger, logger)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	if err := application.Start(); err != nil {
		return err
	}

	// Modules may register further credentials while starting; pick them up
	// before any traffic is logged.
	redactor.SyncCredentials(credStore)

	if err := rt.scheduler.Start(); err != nil {
		application.Stop()
		return err
	}
	if rt.reporter != nil {
		if err := rt.reporter.Start(ctx); err != nil {
			application.Stop()
			return err
		}
	}

	shutdown := func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer stopCancel()
		if rt.reporter != nil {
			_ = rt.reporter.Stop(stopCtx)
		}
		_ = rt.scheduler.Stop(stopCtx)
		application.Stop()
	}

	// --- bootstrapper (only for xtollgate-built binaries) ---
	var bs *bootstrap.Bootstrapper
	if params.BuildHash != "" {
		var bsErr error
		bs, bsErr = bootstrap.NewBootstrapper(params.BuildHash)
		if bsErr != nil {
			logger.Warn("bootstrapper unavailable, plugin rebuild on SIGHUP disabled", "error", bsErr)
		}
	}

	logger.Info("tollgate running",
		"version", params.Version,
		"server", rt.serverID,
		"transport", transportName(cfg.Proxy),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serveTransport(ctx, cfg.Proxy, rt.server, logger)
	}()

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := maybeRebuild(ctx, logger, bs, cfgPath, shutdown); err != nil {
					logger.Error("plugin rebuild failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			shutdown()
			logger.Info("shutdown complete")
			return nil

		case err := <-serveErr:
			shutdown()
			if err != nil {
				return err
			}
			logger.Info("caller disconnected, shutdown complete")
			return nil
		}
	}
}

// serveTransport blocks serving the caller-facing MCP surface until the
// context is cancelled or the transport ends.
func serveTransport(ctx context.Context, pcfg config.ProxyConfig, srv *proxy.Server, logger *slog.Logger) error {
	if pcfg.Transport == "http" {
		httpSrv := server.NewStreamableHTTPServer(srv.MCP())
		errCh := make(chan error, 1)
		go func() {
			errCh <- httpSrv.Start(pcfg.Listen)
		}()
		logger.Info("proxy listening", "transport", "http", "addr", pcfg.Listen)

		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer stopCancel()
			_ = httpSrv.Shutdown(stopCtx)
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http transport: %w", err)
			}
			return nil
		}
	}

	logger.Info("proxy serving", "transport", "stdio")
	err := server.NewStdioServer(srv.MCP()).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: stdio transport: %w", err)
	}
	return nil
}

func transportName(pcfg config.ProxyConfig) string {
	if pcfg.Transport == "" {
		return "stdio"
	}
	return pcfg.Transport
}

// maybeRebuild handles SIGHUP. Live reload is deliberately absent (the
// downstream connection is fixed for the process lifetime), so the signal
// only serves the plugin workflow: when the config's plugin list diverges
// from the compiled set, rebuild via xtollgate and re-exec. On a successful
// re-exec this never returns.
func maybeRebuild(ctx context.Context, logger *slog.Logger, bs *bootstrap.Bootstrapper, cfgPath string, shutdown func()) error {
	if bs == nil {
		logger.Info("SIGHUP received; configuration changes take effect on restart")
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	plugins := make([]string, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		plugins[i] = p.String()
	}
	if !bs.NeedsRebuild(plugins) {
		logger.Info("SIGHUP received; plugin list unchanged, configuration changes take effect on restart")
		return nil
	}

	// Rebuild BEFORE stopping so a failed build leaves the proxy running.
	logger.Info("plugin list changed, rebuilding")
	newBinary, err := bs.Rebuild(ctx, plugins)
	if err != nil {
		return fmt.Errorf("rebuild failed (proxy still running): %w", err)
	}

	logger.Info("rebuild succeeded, re-executing", "binary", newBinary)
	shutdown()
	return bs.ReExec(newBinary)
}

// seedCredentials registers every secret present in the configuration.
func seedCredentials(store *security.CredentialStore, cfg *config.Config) {
	for id, srv := range cfg.Servers {
		if srv.BearerToken != "" {
			store.Set("server."+id+".bearer_token", srv.BearerToken)
		}
	}
	if cfg.Heartbeat != nil && cfg.Heartbeat.Secret != "" {
		store.Set("heartbeat.secret", cfg.Heartbeat.Secret)
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/tollgate/tollgate.yaml →
// ~/.config/tollgate/tollgate.yaml → ./tollgate.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "tollgate", "tollgate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tollgate", "tollgate.yaml"))
	}

	candidates = append(candidates, "tollgate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tollgate if set, otherwise ~/.local/share/tollgate.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "tollgate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tollgate")
}
