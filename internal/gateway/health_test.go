package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flemzord/tollgate/internal/task"
)

func TestHealth_AllHealthy(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		tasks: &fakeTaskSource{tasks: []task.Task{
			{ID: "task-1-aaaa", Tool: "addTodos", CreatedAt: time.Now()},
		}},
		down: &fakePinger{},
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Downstream != "ok" {
		t.Errorf("downstream = %q, want %q", resp.Downstream, "ok")
	}
	if resp.PendingTasks != 1 {
		t.Errorf("pending_tasks = %d, want 1", resp.PendingTasks)
	}
}

func TestHealth_DownstreamUnreachable(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		down: &fakePinger{err: errors.New("broken pipe")},
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Status != "degraded" {
		t.Errorf("status = %q, want %q", resp.Status, "degraded")
	}
	if resp.Downstream != "unreachable" {
		t.Errorf("downstream = %q, want %q", resp.Downstream, "unreachable")
	}
}

func TestHealth_NoDownstream(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Downstream != "not_connected" {
		t.Errorf("downstream = %q, want %q", resp.Downstream, "not_connected")
	}
}
