// Package loopback is a self-contained chat engine. It keeps conversations in
// memory or in a sealed snapshot, encrypts every message end to end and talks
// to peers over the waku node. Two engines sharing a mock bus can chat with
// each other inside one process.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"chatsdk/go-backend/internal/engine"
	"chatsdk/go-backend/internal/waku"

	"github.com/google/uuid"
)

const componentName = "loopback-engine"

var destroyedPayload = []byte(`{"destroyed":true}`)

type Options struct {
	// Bus carries mock transport traffic. Nil selects waku.DefaultBus.
	Bus    *waku.Bus
	Logger *slog.Logger
	Now    func() time.Time
}

// Engine implements engine.Engine. Every completion of a session is invoked
// from that session's worker goroutine.
type Engine struct {
	bus    *waku.Bus
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	workers sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

func New(opts Options) *Engine {
	if opts.Bus == nil {
		opts.Bus = waku.DefaultBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		bus:      opts.Bus,
		logger:   opts.Logger.With("component", componentName),
		now:      opts.Now,
		sessions: make(map[string]*session),
	}
}

func (e *Engine) Create(config []byte, done engine.Completion) (engine.Handle, error) {
	if done == nil {
		return nil, fmt.Errorf("%w: completion is required", engine.ErrCreateFailed)
	}
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	s := &session{
		id:     uuid.NewString(),
		engine: e,
		cfg:    cfg,
		logger: e.logger,
		keys:   make(map[string][]byte),
	}
	s.logger = e.logger.With("session_id", s.id)
	s.work = startWorker(&e.workers)

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	s.work.submit(func() { s.initialize(done) })
	return s, nil
}

func (e *Engine) Start(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.start(done) })
}

func (e *Engine) Stop(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.stop(done) })
}

// Destroy invalidates h at once. Work already queued still runs, then the
// session's node is stopped, done (if any) receives {"destroyed":true} and the
// worker exits.
func (e *Engine) Destroy(h engine.Handle, done engine.Completion) engine.Status {
	s, ok := e.lookup(h)
	if !ok {
		if done == nil {
			return engine.StatusMissingCallback
		}
		return engine.StatusErr
	}
	s.mu.Lock()
	s.closed = true
	s.push = nil
	s.mu.Unlock()

	e.mu.Lock()
	delete(e.sessions, s.id)
	e.mu.Unlock()

	s.work.submit(func() {
		s.shutdown()
		if done != nil {
			done(engine.StatusOK, destroyedPayload)
		}
	})
	s.work.close()
	return engine.StatusOK
}

func (e *Engine) GetID(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.getID(done) })
}

func (e *Engine) GetDefaultInboxID(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.getDefaultInboxID(done) })
}

func (e *Engine) ListConversations(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.listConversations(done) })
}

func (e *Engine) GetConversation(h engine.Handle, done engine.Completion, convoID string) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.getConversation(done, convoID) })
}

func (e *Engine) NewPrivateConversation(h engine.Handle, done engine.Completion, introBundle, contentHex string) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.newPrivateConversation(done, introBundle, contentHex) })
}

func (e *Engine) SendMessage(h engine.Handle, done engine.Completion, convoID, contentHex string) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.sendMessage(done, convoID, contentHex) })
}

func (e *Engine) GetIdentity(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.getIdentity(done) })
}

func (e *Engine) CreateIntroBundle(h engine.Handle, done engine.Completion) engine.Status {
	return e.dispatch(h, done, func(s *session) { s.createIntroBundle(done) })
}

// SubscribeEvents replaces the session's push completion. Pushes raised while
// none is registered are dropped.
func (e *Engine) SubscribeEvents(h engine.Handle, done engine.Completion) {
	s, ok := e.lookup(h)
	if !ok || done == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.push = done
	}
}

// Shutdown destroys every live session without completions and waits for all
// workers to exit or ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	live := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()
	for _, s := range live {
		e.Destroy(s, nil)
	}

	finished := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions reports how many sessions are live.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) lookup(h engine.Handle) (*session, bool) {
	s, ok := h.(*session)
	if !ok || s == nil || s.engine != e {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s, !s.closed
}

func (e *Engine) dispatch(h engine.Handle, done engine.Completion, task func(*session)) engine.Status {
	if done == nil {
		return engine.StatusMissingCallback
	}
	s, ok := e.lookup(h)
	if !ok {
		return engine.StatusErr
	}
	if !s.work.submit(func() { task(s) }) {
		return engine.StatusErr
	}
	return engine.StatusOK
}

func errorPayload(err error) []byte {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return body
}
