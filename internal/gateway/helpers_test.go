package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTaskSource is a minimal TaskSource for handler tests.
type fakeTaskSource struct {
	tasks []task.Task
}

func (f *fakeTaskSource) Pending() []task.Task { return f.tasks }
func (f *fakeTaskSource) PendingCount() int    { return len(f.tasks) }

// fakePinger is a Pinger whose outcome is fixed.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

// fakeHighRisk is a HighRiskSource with canned data.
type fakeHighRisk struct {
	server string
	tools  []string
	err    error
}

func (f *fakeHighRisk) ServerID() string { return f.server }
func (f *fakeHighRisk) HighRiskTools() ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

// fakeLedger is an in-test ledger.Store.
type fakeLedger struct {
	decisions []ledger.Decision
	recentErr error
}

func (f *fakeLedger) Append(_ context.Context, d ledger.Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]ledger.Decision, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if limit <= 0 || limit > len(f.decisions) {
		limit = len(f.decisions)
	}
	return f.decisions[:limit], nil
}

func (f *fakeLedger) Prune(context.Context, time.Duration) (int, error) { return 0, nil }
func (f *fakeLedger) Close() error                                      { return nil }

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doGet makes a GET request with context.
func doGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// doGetWithBearer makes a GET request with a bearer token.
func doGetWithBearer(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func newTestGateway(t *testing.T, addr string, auth AuthConfig) *Gateway {
	t.Helper()
	logger := testLogger()
	appCtx := core.NewAppContext(logger, t.TempDir())

	g := &Gateway{}
	g.config = Config{
		Bind:            addr,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		Auth:            auth,
	}
	g.appCtx = appCtx
	g.logger = logger
	g.metrics = NewMetrics()
	g.dispatcher = NewWebhookDispatcher(logger)
	return g
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
