package httpapprover

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/approvals" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req CreateApprovalRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.TaskID != "task-1-ab12" {
			t.Errorf("TaskID = %q, want task-1-ab12", req.TaskID)
		}
		if req.Tool != "addTodos" {
			t.Errorf("Tool = %q, want addTodos", req.Tool)
		}

		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, createResponse{ID: "ap-123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", 5*time.Second)
	id, err := client.CreateApproval(context.Background(), CreateApprovalRequest{
		TaskID:    "task-1-ab12",
		Tool:      "addTodos",
		Arguments: json.RawMessage(`{"title":"x"}`),
		Approver:  "malo",
	})
	if err != nil {
		t.Fatalf("CreateApproval() error: %v", err)
	}
	if id != "ap-123" {
		t.Errorf("id = %q, want ap-123", id)
	}
}

func TestCreateApprovalNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header sent without a configured token")
		}
		writeJSON(t, w, createResponse{ID: "ap-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	if _, err := client.CreateApproval(context.Background(), CreateApprovalRequest{TaskID: "t"}); err != nil {
		t.Fatalf("CreateApproval() error: %v", err)
	}
}

func TestCreateApprovalServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.CreateApproval(context.Background(), CreateApprovalRequest{TaskID: "t"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != http.StatusBadGateway {
		t.Errorf("Code = %d, want 502", apiErr.Code)
	}
}

func TestCreateApprovalEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, createResponse{ID: ""})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	if _, err := client.CreateApproval(context.Background(), CreateApprovalRequest{TaskID: "t"}); err == nil {
		t.Fatal("expected error for empty id, got nil")
	}
}

func TestGetApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/approvals/ap-123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		writeJSON(t, w, ApprovalStatus{Status: StatusApproved})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", 5*time.Second)
	status, err := client.GetApproval(context.Background(), "ap-123")
	if err != nil {
		t.Fatalf("GetApproval() error: %v", err)
	}
	if status.Status != StatusApproved {
		t.Errorf("Status = %q, want approved", status.Status)
	}
}

func TestGetApprovalNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such approval", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.GetApproval(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", apiErr.Code)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Code: 502, Body: "upstream broke"}
	want := "httpapprover: unexpected status 502: upstream broke"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err2 := &APIError{Code: 500}
	want2 := "httpapprover: unexpected status 500"
	if got := err2.Error(); got != want2 {
		t.Errorf("Error() = %q, want %q", got, want2)
	}
}
