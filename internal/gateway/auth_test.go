package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/security/securitytest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func authRequest(target, header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuthMiddleware_ValidBearerToken(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(AuthConfig{BearerToken: "ops-token"}, nil, nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("/status", "Bearer ops-token"))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_InvalidBearerToken(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(AuthConfig{BearerToken: "ops-token"}, nil, nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("/status", "Bearer wrong-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidBasicAuth(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(AuthConfig{BasicUser: "operator", BasicPass: "pass123"}, nil, nil)(okHandler())

	req := authRequest("/approvals", "")
	req.SetBasicAuth("operator", "pass123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_InvalidBasicAuth(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(AuthConfig{BasicUser: "operator", BasicPass: "pass123"}, nil, nil)(okHandler())

	req := authRequest("/approvals", "")
	req.SetBasicAuth("operator", "wrongpass")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_NoAuthHeader(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(AuthConfig{BearerToken: "ops-token"}, nil, nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("/status", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_BothSchemesAccepted(t *testing.T) {
	t.Parallel()

	cfg := AuthConfig{
		BearerToken: "ops-token",
		BasicUser:   "operator",
		BasicPass:   "pass123",
	}
	handler := authMiddleware(cfg, nil, nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("/status", "Bearer ops-token"))
	if rr.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want %d", rr.Code, http.StatusOK)
	}

	req := authRequest("/status", "")
	req.SetBasicAuth("operator", "pass123")
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusOK {
		t.Errorf("basic: status = %d, want %d", rr2.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_AuditsOutcomes(t *testing.T) {
	t.Parallel()

	audit, capturedEvents := securitytest.NewTestAuditLogger()
	handler := authMiddleware(AuthConfig{BearerToken: "ops-token"}, audit, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), authRequest("/status", ""))
	handler.ServeHTTP(httptest.NewRecorder(), authRequest("/status", "Bearer ops-token"))

	events := capturedEvents()
	if len(events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(events))
	}
	if events[0].Type != security.EventAuthFailure {
		t.Errorf("first event = %q, want %q", events[0].Type, security.EventAuthFailure)
	}
	if events[1].Type != security.EventAuthSuccess {
		t.Errorf("second event = %q, want %q", events[1].Type, security.EventAuthSuccess)
	}
	if events[0].Metadata["path"] != "/status" {
		t.Errorf("path metadata = %q, want %q", events[0].Metadata["path"], "/status")
	}
}

func TestAuthMiddleware_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 1})
	handler := authMiddleware(AuthConfig{BearerToken: "ops-token"}, nil, limiter)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("/status", "Bearer ops-token"))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, authRequest("/status", "Bearer ops-token"))
	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", rr2.Code, http.StatusTooManyRequests)
	}
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  AuthConfig
		want bool
	}{
		{"empty", AuthConfig{}, false},
		{"bearer only", AuthConfig{BearerToken: "tok"}, true},
		{"basic complete", AuthConfig{BasicUser: "u", BasicPass: "p"}, true},
		{"basic partial user", AuthConfig{BasicUser: "u"}, false},
		{"basic partial pass", AuthConfig{BasicPass: "p"}, false},
		{"both", AuthConfig{BearerToken: "t", BasicUser: "u", BasicPass: "p"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}
