package rpc

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
	"chatsdk/go-backend/internal/config"
	"chatsdk/go-backend/internal/notify"
)

type chatCall struct {
	method string
	args   []string
}

// fakeChat records every call and answers with err.
type fakeChat struct {
	mu      sync.Mutex
	calls   []chatCall
	err     error
	stage   chatsdk.Stage
	pending []chatsdk.PendingRequest
}

func (f *fakeChat) record(method string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{method: method, args: args})
	return f.err
}

func (f *fakeChat) last(t *testing.T) chatCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("no chat call recorded")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChat) Initialize(config []byte) error { return f.record("Initialize", string(config)) }
func (f *fakeChat) Start() error                   { return f.record("Start") }
func (f *fakeChat) Stop() error                    { return f.record("Stop") }
func (f *fakeChat) Destroy() error                 { return f.record("Destroy") }
func (f *fakeChat) RegisterPushHandler() error     { return f.record("RegisterPushHandler") }
func (f *fakeChat) GetID() error                   { return f.record("GetID") }
func (f *fakeChat) GetDefaultInboxID() error       { return f.record("GetDefaultInboxID") }
func (f *fakeChat) ListConversations() error       { return f.record("ListConversations") }
func (f *fakeChat) GetIdentity() error             { return f.record("GetIdentity") }
func (f *fakeChat) CreateIntroBundle() error       { return f.record("CreateIntroBundle") }

func (f *fakeChat) GetConversation(convoID string) error {
	return f.record("GetConversation", convoID)
}

func (f *fakeChat) NewPrivateConversation(introBundle, contentHex string) error {
	return f.record("NewPrivateConversation", introBundle, contentHex)
}

func (f *fakeChat) SendMessage(convoID, contentHex string) error {
	return f.record("SendMessage", convoID, contentHex)
}

func (f *fakeChat) Stage() chatsdk.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stage == "" {
		return chatsdk.StageUninitialized
	}
	return f.stage
}

func (f *fakeChat) Outstanding() []chatsdk.PendingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatsdk.PendingRequest(nil), f.pending...)
}

func testOptions() Options {
	return Options{
		Streams:      config.StreamConfig{MaxGlobal: 4, MaxPerClient: 2},
		EngineConfig: []byte(`{"name":"default"}`),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Heartbeat:    time.Hour,
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeChat, *notify.Hub) {
	t.Helper()
	chat := &fakeChat{}
	hub := notify.NewHub("chat.", 16)
	s, err := NewServer(chat, hub, opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s, chat, hub
}
