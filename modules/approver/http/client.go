// Package httpapprover implements a generic REST approver channel. It talks
// to any approval service exposing a create-then-poll pair of endpoints:
//
//	POST /v1/approvals      -> {"id": "..."}
//	GET  /v1/approvals/{id} -> {"status": "pending|approved|denied|expired"}
//
// The service owns all decision state; this module holds nothing in memory.
// Requests carry an optional bearer token and are never retried.
package httpapprover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes caps response reads from the approval service.
const maxResponseBytes = 1 << 20

// Approval status values reported by the service.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"
)

// CreateApprovalRequest is the body of POST /v1/approvals.
type CreateApprovalRequest struct {
	TaskID    string          `json:"task_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Approver  string          `json:"approver"`
	Server    string          `json:"server,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type createResponse struct {
	ID string `json:"id"`
}

// ApprovalStatus is the body of GET /v1/approvals/{id}.
type ApprovalStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// APIError is a non-2xx answer from the approval service.
type APIError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Sprintf("httpapprover: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("httpapprover: unexpected status %d: %s", e.Code, body)
}

// Client is a thin HTTP wrapper around the approval service API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a new approval service client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateApproval registers a new approval request and returns the id the
// service assigned to it.
func (c *Client) CreateApproval(ctx context.Context, req CreateApprovalRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("httpapprover: marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/approvals", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("httpapprover: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("httpapprover: create approval: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out createResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("httpapprover: decode create response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("httpapprover: service returned an empty approval id")
	}
	return out.ID, nil
}

// GetApproval reports the current status of a previously created approval.
func (c *Client) GetApproval(ctx context.Context, id string) (*ApprovalStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/approvals/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("httpapprover: create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpapprover: get approval: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out ApprovalStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("httpapprover: decode status response: %w", err)
	}
	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpapprover: read response: %w", err)
	}
	return body, nil
}
