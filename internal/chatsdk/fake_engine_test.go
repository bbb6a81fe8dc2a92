package chatsdk

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"chatsdk/go-backend/internal/engine"
)

type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string { return h.id }

type fakeCall struct {
	kind   engine.Kind
	handle engine.Handle
	done   engine.Completion
	args   []string
}

// fakeEngine records every call and lets the test deliver completions by hand.
type fakeEngine struct {
	mu sync.Mutex

	createErr error
	// initInline, when set, is delivered from inside Create before it returns.
	initInline *engine.Status
	statuses   map[engine.Kind]engine.Status
	// inline kinds complete synchronously from inside the engine call.
	inline map[engine.Kind][]byte

	creates     int
	calls       []fakeCall
	destroyed   map[engine.Handle]bool
	afterDeath  []engine.Kind
	subscribers int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		statuses:  make(map[engine.Kind]engine.Status),
		inline:    make(map[engine.Kind][]byte),
		destroyed: make(map[engine.Handle]bool),
	}
}

func (e *fakeEngine) Create(config []byte, done engine.Completion) (engine.Handle, error) {
	e.mu.Lock()
	if e.createErr != nil {
		err := e.createErr
		e.mu.Unlock()
		return nil, err
	}
	e.creates++
	h := &fakeHandle{id: "h" + strconv.Itoa(e.creates)}
	e.calls = append(e.calls, fakeCall{kind: engine.KindInitialize, handle: h, done: done, args: []string{string(config)}})
	inline := e.initInline
	e.mu.Unlock()

	if inline != nil {
		done(*inline, nil)
	}
	return h, nil
}

func (e *fakeEngine) record(kind engine.Kind, h engine.Handle, done engine.Completion, args ...string) engine.Status {
	e.mu.Lock()
	if e.destroyed[h] {
		e.afterDeath = append(e.afterDeath, kind)
	}
	if kind == engine.KindDestroy && done == nil {
		e.destroyed[h] = true
		e.mu.Unlock()
		return engine.StatusOK
	}
	status := e.statuses[kind]
	if status.OK() {
		e.calls = append(e.calls, fakeCall{kind: kind, handle: h, done: done, args: args})
		if kind == engine.KindDestroy {
			e.destroyed[h] = true
		}
	}
	payload, inline := e.inline[kind]
	e.mu.Unlock()

	if status.OK() && inline {
		done(engine.StatusOK, payload)
	}
	return status
}

func (e *fakeEngine) Start(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindStart, h, done)
}

func (e *fakeEngine) Stop(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindStop, h, done)
}

func (e *fakeEngine) Destroy(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindDestroy, h, done)
}

func (e *fakeEngine) GetID(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindGetID, h, done)
}

func (e *fakeEngine) GetDefaultInboxID(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindGetDefaultInboxID, h, done)
}

func (e *fakeEngine) ListConversations(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindListConversations, h, done)
}

func (e *fakeEngine) GetConversation(h engine.Handle, done engine.Completion, convoID string) engine.Status {
	return e.record(engine.KindGetConversation, h, done, convoID)
}

func (e *fakeEngine) NewPrivateConversation(h engine.Handle, done engine.Completion, introBundle, contentHex string) engine.Status {
	return e.record(engine.KindNewPrivateConversation, h, done, introBundle, contentHex)
}

func (e *fakeEngine) SendMessage(h engine.Handle, done engine.Completion, convoID, contentHex string) engine.Status {
	return e.record(engine.KindSendMessage, h, done, convoID, contentHex)
}

func (e *fakeEngine) GetIdentity(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindGetIdentity, h, done)
}

func (e *fakeEngine) CreateIntroBundle(h engine.Handle, done engine.Completion) engine.Status {
	return e.record(engine.KindCreateIntroBundle, h, done)
}

func (e *fakeEngine) SubscribeEvents(h engine.Handle, done engine.Completion) {
	e.mu.Lock()
	e.subscribers++
	e.mu.Unlock()
	e.record(engine.KindPush, h, done)
}

func (e *fakeEngine) setStatus(kind engine.Kind, status engine.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[kind] = status
}

func (e *fakeEngine) callCount(kind engine.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (e *fakeEngine) lastCall(t *testing.T, kind engine.Kind) fakeCall {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if e.calls[i].kind == kind {
			return e.calls[i]
		}
	}
	t.Fatalf("no %s call recorded", kind)
	return fakeCall{}
}

// complete delivers a completion for the most recent call of kind.
func (e *fakeEngine) complete(t *testing.T, kind engine.Kind, status engine.Status, payload string) {
	t.Helper()
	call := e.lastCall(t, kind)
	var body []byte
	if payload != "" {
		body = []byte(payload)
	}
	call.done(status, body)
}

func (e *fakeEngine) usedAfterDestroy() []engine.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Kind(nil), e.afterDeath...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) names() []string {
	events := s.snapshot()
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Name())
	}
	return out
}

var fixedNow = time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

func newTestClient(t *testing.T) (*Client, *fakeEngine, *recordingSink) {
	t.Helper()
	eng := newFakeEngine()
	sink := &recordingSink{}
	client := NewClient(eng, sink, ClientOptions{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: NewMetrics(nil),
		Now:     func() time.Time { return fixedNow },
	})
	return client, eng, sink
}

// readyClient returns a client whose initialization completed successfully.
func readyClient(t *testing.T) (*Client, *fakeEngine, *recordingSink) {
	t.Helper()
	client, eng, sink := newTestClient(t)
	if err := client.Initialize([]byte(`{"name":"alice"}`)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	eng.complete(t, engine.KindInitialize, engine.StatusOK, "")
	if got := client.Stage(); got != StageReady {
		t.Fatalf("expected ready, got %s", got)
	}
	return client, eng, sink
}
