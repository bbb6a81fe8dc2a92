package loopback_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
	"chatsdk/go-backend/internal/engine/loopback"
	"chatsdk/go-backend/internal/waku"
	"chatsdk/go-backend/pkg/models"

	"go.uber.org/goleak"
)

type eventStream chan chatsdk.Event

func (s eventStream) Deliver(ev chatsdk.Event) {
	select {
	case s <- ev:
	default:
	}
}

// await skips events until one named name arrives.
func (s eventStream) await(t *testing.T, name string) chatsdk.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s:
			if ev.Name() == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
			return nil
		}
	}
}

type host struct {
	client *chatsdk.Client
	events eventStream
}

func newHost(t *testing.T, eng *loopback.Engine, config string) *host {
	t.Helper()
	events := make(eventStream, 256)
	client := chatsdk.NewClient(eng, events, chatsdk.ClientOptions{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: chatsdk.NewMetrics(nil),
	})
	h := &host{client: client, events: events}
	if err := client.Initialize([]byte(config)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	init := events.await(t, chatsdk.EventInitResult).(chatsdk.InitResult)
	if !init.Success {
		t.Fatalf("init failed: %+v", init)
	}
	if err := client.RegisterPushHandler(); err != nil {
		t.Fatalf("register push: %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if start := events.await(t, chatsdk.EventStartResult).(chatsdk.StartResult); !start.Success {
		t.Fatalf("start failed: %+v", start)
	}
	if got := client.Stage(); got != chatsdk.StageStarted {
		t.Fatalf("expected started, got %s", got)
	}
	return h
}

func (h *host) destroy(t *testing.T) {
	t.Helper()
	if err := h.client.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	h.events.await(t, chatsdk.EventDestroyResult)
}

func TestClientsChatOverSharedBus(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := loopback.New(loopback.Options{
		Bus:    waku.NewBus(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	alice := newHost(t, eng, `{"name":"alice"}`)
	bob := newHost(t, eng, `{"name":"bob"}`)

	if err := bob.client.CreateIntroBundle(); err != nil {
		t.Fatalf("createIntroBundle: %v", err)
	}
	bundle := bob.events.await(t, chatsdk.EventCreateIntroBundleResult).(chatsdk.CreateIntroBundleResult)
	if !bundle.Success {
		t.Fatalf("bundle failed: %+v", bundle)
	}

	if err := alice.client.NewPrivateConversation(bundle.Data, "68656c6c6f"); err != nil {
		t.Fatalf("newPrivateConversation: %v", err)
	}
	opened := alice.events.await(t, chatsdk.EventNewPrivateConversationResult).(chatsdk.NewPrivateConversationResult)
	if !opened.Success {
		t.Fatalf("conversation failed: %+v", opened)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(opened.Data), &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}

	bob.events.await(t, chatsdk.EventNewConversation)
	msg := bob.events.await(t, chatsdk.EventNewMessage).(chatsdk.NewMessage)
	var push models.PushEvent
	if err := json.Unmarshal([]byte(msg.Payload), &push); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if push.ConversationID != conv.ID || push.Content != "68656c6c6f" {
		t.Fatalf("unexpected push %s", msg.Payload)
	}
	alice.events.await(t, chatsdk.EventDeliveryAck)

	if err := bob.client.SendMessage(conv.ID, "6f6b"); err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if sent := bob.events.await(t, chatsdk.EventSendMessageResult).(chatsdk.SendMessageResult); !sent.Success {
		t.Fatalf("send failed: %+v", sent)
	}
	alice.events.await(t, chatsdk.EventNewMessage)

	if err := alice.client.GetConversation("conv_unknown"); err != nil {
		t.Fatalf("getConversation: %v", err)
	}
	if err := alice.client.ListConversations(); err != nil {
		t.Fatalf("listConversations: %v", err)
	}
	list := alice.events.await(t, chatsdk.EventListConversationsResult).(chatsdk.ListConversationsResult)
	var convs []models.Conversation
	if err := json.Unmarshal([]byte(list.Data), &convs); err != nil || len(convs) != 1 {
		t.Fatalf("unexpected list %s (%v)", list.Data, err)
	}
	if len(alice.client.Outstanding()) != 0 {
		t.Fatalf("unknown conversation lookup must resolve silently, outstanding: %+v", alice.client.Outstanding())
	}

	alice.destroy(t)
	bob.destroy(t)
	if err := alice.client.GetID(); !errors.Is(err, chatsdk.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after destroy, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestClientInitFailureReturnsToUninitialized(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := loopback.New(loopback.Options{
		Bus:    waku.NewBus(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	events := make(eventStream, 16)
	client := chatsdk.NewClient(eng, events, chatsdk.ClientOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	for _, raw := range []string{`{"transport":"smoke-signals"}`, `{"nmae":"typo"}`, `{"port":-5}`} {
		err := client.Initialize([]byte(raw))
		if !errors.Is(err, chatsdk.ErrInvalidConfig) || chatsdk.Reason(err) != "invalid_config" {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", raw, err)
		}
		if got := client.Stage(); got != chatsdk.StageUninitialized {
			t.Fatalf("%s: expected uninitialized, got %s", raw, got)
		}
	}
	if err := client.Initialize([]byte(`{"mnemonic":"definitely not twelve words"}`)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	init := events.await(t, chatsdk.EventInitResult).(chatsdk.InitResult)
	if init.Success {
		t.Fatalf("expected failed init")
	}
	deadline := time.Now().Add(5 * time.Second)
	for eng.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("failed session was not destroyed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := client.Stage(); got != chatsdk.StageUninitialized {
		t.Fatalf("expected uninitialized after failed init, got %s", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
