package daemon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
	"chatsdk/go-backend/internal/engine"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

type fixedOutstanding []chatsdk.PendingRequest

func (f fixedOutstanding) Outstanding() []chatsdk.PendingRequest { return f }

func TestStaleReporterReportsOldRequests(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := fixedOutstanding{
		{Token: chatsdk.Token(uuid.New()), Kind: engine.KindGetID, CreatedAt: now.Add(-5 * time.Minute)},
		{Token: chatsdk.Token(uuid.New()), Kind: engine.KindSendMessage, CreatedAt: now.Add(-10 * time.Second)},
	}
	var logs bytes.Buffer
	r := NewStaleReporter(source, time.Minute, time.Second, prometheus.NewRegistry(), slog.New(slog.NewJSONHandler(&logs, nil)))
	r.now = func() time.Time { return now }

	if got := r.Report(); got != 1 {
		t.Fatalf("expected one stale request, got %d", got)
	}
	if got := testutil.ToFloat64(r.stale); got != 1 {
		t.Fatalf("expected stale gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.oldest); got != 300 {
		t.Fatalf("expected oldest age 300s, got %v", got)
	}
	if !strings.Contains(logs.String(), `"operation":"getId"`) {
		t.Fatalf("expected warning for getId, got %s", logs.String())
	}
	if strings.Contains(logs.String(), "sendMessage") {
		t.Fatalf("fresh requests must not be reported")
	}
	if len(source.Outstanding()) != 2 {
		t.Fatalf("reporting must not resolve requests")
	}
}

func TestStaleReporterWarnsOncePerRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stuck := chatsdk.PendingRequest{Token: chatsdk.Token(uuid.New()), Kind: engine.KindGetIdentity, CreatedAt: now.Add(-5 * time.Minute)}
	source := &mutableOutstanding{reqs: []chatsdk.PendingRequest{stuck}}
	var logs bytes.Buffer
	r := NewStaleReporter(source, time.Minute, time.Second, prometheus.NewRegistry(), slog.New(slog.NewJSONHandler(&logs, nil)))
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if got := r.Report(); got != 1 {
			t.Fatalf("report %d: expected one stale request, got %d", i, got)
		}
		now = now.Add(time.Minute)
	}
	if n := strings.Count(logs.String(), `"operation":"getIdentity"`); n != 1 {
		t.Fatalf("expected a single warning, got %d:\n%s", n, logs.String())
	}
	if got := testutil.ToFloat64(r.stale); got != 1 {
		t.Fatalf("expected stale gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.oldest); got != 420 {
		t.Fatalf("expected oldest age 420s, got %v", got)
	}

	source.reqs = nil
	if got := r.Report(); got != 0 {
		t.Fatalf("expected no stale requests, got %d", got)
	}
	if got := testutil.ToFloat64(r.stale); got != 0 {
		t.Fatalf("expected stale gauge reset, got %v", got)
	}
	if len(r.warned) != 0 {
		t.Fatalf("resolved requests must be forgotten, got %d", len(r.warned))
	}
}

type mutableOutstanding struct {
	reqs []chatsdk.PendingRequest
}

func (m *mutableOutstanding) Outstanding() []chatsdk.PendingRequest { return m.reqs }

func TestStaleReporterDisabled(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := NewStaleReporter(fixedOutstanding{}, 0, time.Millisecond, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStaleReporterRunTicks(t *testing.T) {
	defer goleak.VerifyNone(t)
	source := fixedOutstanding{{Token: chatsdk.Token(uuid.New()), Kind: engine.KindStart, CreatedAt: time.Now().Add(-time.Hour)}}
	r := NewStaleReporter(source, time.Minute, 5*time.Millisecond, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(r.stale) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("stale gauge never updated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
