package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/events"
	"github.com/flemzord/tollgate/internal/gateway"
	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/proxy"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/security/securitytest"
	"github.com/flemzord/tollgate/pkg/approval"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubApprover struct{}

func (s *stubApprover) RequestApproval(context.Context, approval.Request) (string, error) {
	return "1", nil
}

func (s *stubApprover) CheckApproval(context.Context, string) (approval.Decision, error) {
	return approval.Decision{Verdict: approval.VerdictPending}, nil
}

func TestResolveApprover(t *testing.T) {
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	want := &stubApprover{}
	appCtx.RegisterService("approver.channel", want)

	got, err := resolveApprover(appCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("resolved approver is not the registered service")
	}
}

func TestResolveApproverMissing(t *testing.T) {
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())

	_, err := resolveApprover(appCtx)
	if err == nil {
		t.Fatal("expected error when no approver service is registered")
	}
	if !strings.Contains(err.Error(), "no approver module") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveApproverWrongType(t *testing.T) {
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	appCtx.RegisterService("approver.channel", "not an approver")

	_, err := resolveApprover(appCtx)
	if err == nil {
		t.Fatal("expected error for a service of the wrong type")
	}
	if !strings.Contains(err.Error(), "string") {
		t.Errorf("error should name the offending type: %v", err)
	}
}

func TestNewFanoutBindsMetricsService(t *testing.T) {
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())

	f := newFanout(appCtx, nil, nil, nil, discardLogger())
	if f.metrics != nil {
		t.Error("metrics bound without a gateway.metrics service")
	}

	appCtx.RegisterService("gateway.metrics", gateway.NewMetrics())
	f = newFanout(appCtx, nil, nil, nil, discardLogger())
	if f.metrics == nil {
		t.Error("metrics service not bound")
	}
}

func TestFanoutAppendsTerminalEvents(t *testing.T) {
	store := ledger.NewRing(0)
	f := &fanout{store: store, logger: discardLogger()}
	ctx := context.Background()

	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventBlocked, Server: "github", Tool: "deleteRepo"})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventForwarded, Server: "github", Tool: "listRepos"})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCreated, Server: "github", Tool: "deleteRepo", TaskID: "t1"})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCompleted, Server: "github", Tool: "deleteRepo", TaskID: "t1", Elapsed: 2 * time.Second})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventDenied, Server: "github", Tool: "forcePush", TaskID: "t2", Detail: "too risky"})

	got, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ledger holds %d decisions, want 2 (terminal events only)", len(got))
	}
	if got[0].TaskID != "t2" || got[0].Outcome != ledger.OutcomeDenied {
		t.Errorf("newest decision = %+v, want denied t2", got[0])
	}
	if got[0].Detail != "too risky" {
		t.Errorf("Detail = %q, want denial reason", got[0].Detail)
	}
	if got[1].TaskID != "t1" || got[1].Outcome != ledger.OutcomeApproved {
		t.Errorf("older decision = %+v, want approved t1", got[1])
	}
	if got[1].Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", got[1].Elapsed)
	}
}

func TestFanoutRecordsMetrics(t *testing.T) {
	m := gateway.NewMetrics()
	f := &fanout{metrics: m, logger: discardLogger()}
	ctx := context.Background()

	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventForwarded})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventForwarded, Detail: "downstream error"})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventBlocked})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCreated})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCompleted, Elapsed: time.Second})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventDenied, Elapsed: time.Second})

	snap := m.Snapshot()
	want := gateway.MetricsSnapshot{
		Forwarded:     1,
		ForwardErrors: 1,
		Blocked:       1,
		Gated:         1,
		Approved:      1,
		Denied:        1,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
}

func TestFanoutPublishesToHub(t *testing.T) {
	hub := events.NewHub(discardLogger())
	t.Cleanup(hub.Close)
	ch, cancel := hub.Subscribe()
	t.Cleanup(cancel)

	f := &fanout{hub: hub, logger: discardLogger()}
	f.GateEvent(context.Background(), proxy.Event{Kind: proxy.EventCreated, Server: "github", Tool: "deleteRepo", TaskID: "t1"})

	select {
	case ev := <-ch:
		if ev.Kind != string(proxy.EventCreated) || ev.TaskID != "t1" {
			t.Errorf("published event = %+v", ev)
		}
		if ev.At.IsZero() {
			t.Error("hub did not stamp the event time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event published to hub")
	}
}

func TestFanoutAuditsEveryKind(t *testing.T) {
	audit, captureEvents := securitytest.NewTestAuditLogger()

	f := &fanout{audit: audit, logger: discardLogger()}
	ctx := context.Background()
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventBlocked})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventForwarded})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCreated})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventCompleted})
	f.GateEvent(ctx, proxy.Event{Kind: proxy.EventDenied})

	want := []security.EventType{
		security.EventToolBlocked,
		security.EventToolCall,
		security.EventTaskCreated,
		security.EventTaskCompleted,
		security.EventTaskDenied,
	}
	captured := captureEvents()
	if len(captured) != len(want) {
		t.Fatalf("captured %d audit events, want %d", len(captured), len(want))
	}
	for i, typ := range want {
		if captured[i].Type != typ {
			t.Errorf("event %d type = %q, want %q", i, captured[i].Type, typ)
		}
	}
}

func TestFanoutNilSinks(t *testing.T) {
	f := &fanout{logger: discardLogger()}
	// Must not panic with every sink absent.
	f.GateEvent(context.Background(), proxy.Event{Kind: proxy.EventCompleted, TaskID: "t1"})
}
