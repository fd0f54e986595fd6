package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/task"
)

func TestAdmin_ListTasks_Empty(t *testing.T) {
	t.Parallel()

	g := &Gateway{tasks: &fakeTaskSource{}}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rr := httptest.NewRecorder()
	g.handleListTasks().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var tasks []taskJSON
	if err := json.NewDecoder(rr.Body).Decode(&tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
}

func TestAdmin_ListTasks_WithData(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 2, 1, 12, 30, 0, 0, time.UTC)
	g := &Gateway{tasks: &fakeTaskSource{tasks: []task.Task{
		{
			ID:        "task-1-aaaa",
			Tool:      "addTodos",
			Arguments: map[string]any{"title": "x", "due": "tomorrow"},
			CreatedAt: created,
		},
		{ID: "task-2-bbbb", Tool: "deleteRepo", CreatedAt: created.Add(time.Second)},
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rr := httptest.NewRecorder()
	g.handleListTasks().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var tasks []taskJSON
	if err := json.NewDecoder(rr.Body).Decode(&tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}

	if tasks[0].ID != "task-1-aaaa" {
		t.Errorf("tasks[0].ID = %q", tasks[0].ID)
	}
	if tasks[0].CreatedAt != "2026-02-01T12:30:00Z" {
		t.Errorf("created_at = %q", tasks[0].CreatedAt)
	}

	// Argument keys only, sorted; values never cross the ops surface.
	wantKeys := []string{"due", "title"}
	if len(tasks[0].ArgumentKeys) != len(wantKeys) {
		t.Fatalf("argument_keys = %v, want %v", tasks[0].ArgumentKeys, wantKeys)
	}
	for i, k := range wantKeys {
		if tasks[0].ArgumentKeys[i] != k {
			t.Errorf("argument_keys[%d] = %q, want %q", i, tasks[0].ArgumentKeys[i], k)
		}
	}
}

func TestAdmin_ListTasks_NoSource(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rr := httptest.NewRecorder()
	g.handleListTasks().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var tasks []taskJSON
	if err := json.NewDecoder(rr.Body).Decode(&tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
}

func TestAdmin_ListDecisions(t *testing.T) {
	t.Parallel()

	store := &fakeLedger{decisions: []ledger.Decision{
		{TaskID: "task-2-bbbb", Tool: "addTodos", Outcome: ledger.OutcomeApproved},
		{TaskID: "task-1-aaaa", Tool: "deleteRepo", Outcome: ledger.OutcomeDenied, Detail: "not today"},
	}}
	g := &Gateway{decisions: store, logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	rr := httptest.NewRecorder()
	g.handleListDecisions().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var decisions []ledger.Decision
	if err := json.NewDecoder(rr.Body).Decode(&decisions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}
	if decisions[0].TaskID != "task-2-bbbb" {
		t.Errorf("decisions[0].TaskID = %q", decisions[0].TaskID)
	}
	if decisions[1].Detail != "not today" {
		t.Errorf("decisions[1].Detail = %q", decisions[1].Detail)
	}
}

func TestAdmin_ListDecisions_Limit(t *testing.T) {
	t.Parallel()

	store := &fakeLedger{decisions: []ledger.Decision{
		{TaskID: "task-3-cccc"},
		{TaskID: "task-2-bbbb"},
		{TaskID: "task-1-aaaa"},
	}}
	g := &Gateway{decisions: store, logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/decisions?limit=2", nil)
	rr := httptest.NewRecorder()
	g.handleListDecisions().ServeHTTP(rr, req)

	var decisions []ledger.Decision
	if err := json.NewDecoder(rr.Body).Decode(&decisions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decisions) != 2 {
		t.Errorf("decisions = %d, want 2", len(decisions))
	}
}

func TestAdmin_ListDecisions_BadLimit(t *testing.T) {
	t.Parallel()

	g := &Gateway{decisions: &fakeLedger{}, logger: testLogger()}

	for _, raw := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/decisions?limit="+raw, nil)
		rr := httptest.NewRecorder()
		g.handleListDecisions().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%q: status = %d, want %d", raw, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestAdmin_ListDecisions_StoreError(t *testing.T) {
	t.Parallel()

	store := &fakeLedger{recentErr: errors.New("db closed")}
	g := &Gateway{decisions: store, logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	rr := httptest.NewRecorder()
	g.handleListDecisions().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestAdmin_ListHighRisk(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		highRisk: &fakeHighRisk{server: "todo", tools: []string{"addTodos", "deleteRepo"}},
		logger:   testLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/high-risk", nil)
	rr := httptest.NewRecorder()
	g.handleListHighRisk().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp highRiskJSON
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Server != "todo" {
		t.Errorf("server = %q, want %q", resp.Server, "todo")
	}
	if len(resp.Tools) != 2 || resp.Tools[0] != "addTodos" {
		t.Errorf("tools = %v", resp.Tools)
	}
}

func TestAdmin_ListHighRisk_NoProxy(t *testing.T) {
	t.Parallel()

	g := &Gateway{logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/high-risk", nil)
	rr := httptest.NewRecorder()
	g.handleListHighRisk().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAdmin_ListHighRisk_PolicyError(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		highRisk: &fakeHighRisk{server: "todo", err: errors.New("unknown server")},
		logger:   testLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/high-risk", nil)
	rr := httptest.NewRecorder()
	g.handleListHighRisk().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestAdmin_GetConfig_RedactsSecrets(t *testing.T) {
	t.Parallel()

	raw := `gateway:
  bind: ${OPS_BIND}
  auth:
    token: ops-super-secret
modules:
  approver.telegram:
    chat_id: 12345
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	g := &Gateway{configPath: path, redactor: security.NewRedactor(), logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	g.handleGetConfig().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var cfg map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}

	gw, ok := cfg["gateway"].(map[string]any)
	if !ok {
		t.Fatalf("gateway section missing: %v", cfg)
	}
	auth, ok := gw["auth"].(map[string]any)
	if !ok {
		t.Fatalf("auth section missing: %v", gw)
	}
	if auth["token"] != security.RedactPlaceholder {
		t.Errorf("token = %v, want %q", auth["token"], security.RedactPlaceholder)
	}
	// The raw file is served, so variable references stay unexpanded.
	if gw["bind"] != "${OPS_BIND}" {
		t.Errorf("bind = %v, want the unexpanded reference", gw["bind"])
	}
}

func TestAdmin_GetConfig_NoPath(t *testing.T) {
	t.Parallel()

	g := &Gateway{logger: testLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	g.handleGetConfig().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAdmin_GetConfig_MissingFile(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		configPath: filepath.Join(t.TempDir(), "nope.yaml"),
		logger:     testLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	g.handleGetConfig().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}
