package loopback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"chatsdk/go-backend/internal/crypto"
	"chatsdk/go-backend/internal/engine"
	"chatsdk/go-backend/internal/identity"
	"chatsdk/go-backend/internal/storage"
	"chatsdk/go-backend/internal/waku"
	"chatsdk/go-backend/pkg/models"
)

const (
	startTimeout    = 30 * time.Second
	publishTimeout  = 10 * time.Second
	catchUpLimit    = 500
	catchUpLookback = 24 * time.Hour
)

var (
	errNotReady         = errors.New("session is not initialized")
	errSelfConversation = errors.New("cannot open a conversation with yourself")
)

// session is one engine handle. Fields below work are owned by the worker
// goroutine and touched nowhere else.
type session struct {
	id     string
	engine *Engine
	cfg    Config
	logger *slog.Logger
	work   *worker

	mu     sync.Mutex
	closed bool
	push   engine.Completion

	ident       *identity.Identity
	store       *storage.ConversationStore
	node        *waku.Node
	replay      *crypto.ReplayGuard
	keys        map[string][]byte
	lastStopped time.Time
}

func (s *session) ID() string { return s.id }

func (s *session) initialize(done engine.Completion) {
	if err := s.open(); err != nil {
		s.logger.Warn("engine session init failed", "operation", "initialize", "error", err)
		done(engine.StatusErr, errorPayload(err))
		return
	}
	s.logger.Info("engine session ready", "operation", "initialize", "identity_id", s.ident.ID)
	done(engine.StatusOK, nil)
}

func (s *session) open() error {
	if s.cfg.DataDir != "" {
		if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	mnemonic, created, err := identity.ResolveSeed(identity.SeedSource{
		Mnemonic:   s.cfg.Mnemonic,
		Path:       s.cfg.seedPath(),
		Passphrase: s.cfg.Passphrase,
	})
	if err != nil {
		return fmt.Errorf("resolve seed: %w", err)
	}
	keys, err := identity.KeysFromMnemonic(mnemonic)
	if err != nil {
		return err
	}
	ident, err := identity.New(s.cfg.Name, keys, s.engine.now())
	if err != nil {
		return err
	}
	store, err := storage.OpenConversationStore(s.cfg.statePath(), s.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	if created {
		s.logger.Info("generated new identity seed", "operation", "initialize", "persisted", s.cfg.DataDir != "")
	}
	s.ident = ident
	s.store = store
	wc := s.cfg.wakuConfig()
	wc.Logger = s.logger
	s.node = waku.NewNode(wc, s.engine.bus)
	s.replay = crypto.NewReplayGuard()
	return nil
}

func (s *session) ready() bool {
	return s.ident != nil
}

func (s *session) start(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, errorPayload(errNotReady))
		return
	}
	if s.node.Connected() {
		done(engine.StatusOK, nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	s.node.SetIdentity(s.ident.InboxID)
	if err := s.node.Start(ctx); err != nil {
		s.logger.Warn("node start failed", "operation", "start", "error", err)
		done(engine.StatusErr, errorPayload(err))
		return
	}
	if err := s.node.SubscribePrivate(s.onPrivateMessage); err != nil {
		_ = s.node.Stop(ctx)
		done(engine.StatusErr, errorPayload(err))
		return
	}
	s.catchUp(ctx)
	s.logger.Info("node started", "operation", "start", "state", s.node.Status().State)
	done(engine.StatusOK, nil)
}

// catchUp replays store history missed while the node was down.
func (s *session) catchUp(ctx context.Context) {
	since := s.lastStopped
	if since.IsZero() {
		since = s.engine.now().Add(-catchUpLookback)
	}
	missed, err := s.node.FetchPrivateSince(ctx, s.ident.InboxID, since, catchUpLimit)
	if err != nil {
		s.logger.Warn("history fetch failed", "operation", "start", "error", err)
		return
	}
	for _, msg := range missed {
		s.receive(msg)
	}
}

func (s *session) stop(done engine.Completion) {
	if s.node != nil && s.node.Connected() {
		_ = s.node.Stop(context.Background())
		s.lastStopped = s.engine.now()
	}
	done(engine.StatusOK, nil)
}

func (s *session) shutdown() {
	if s.node != nil {
		_ = s.node.Stop(context.Background())
	}
	s.keys = nil
	s.logger.Info("engine session destroyed", "operation", "destroy")
}

// onPrivateMessage runs on the transport's goroutine.
func (s *session) onPrivateMessage(msg waku.PrivateMessage) {
	s.work.submit(func() { s.receive(msg) })
}

func (s *session) getID(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	done(engine.StatusOK, []byte(s.ident.ID))
}

func (s *session) getDefaultInboxID(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	done(engine.StatusOK, []byte(s.ident.InboxID))
}

func (s *session) getIdentity(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	s.reply(done, s.ident.Model())
}

func (s *session) createIntroBundle(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	s.reply(done, s.ident.IntroBundle(s.engine.now()))
}

func (s *session) listConversations(done engine.Completion) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	s.reply(done, s.store.ListConversations())
}

func (s *session) getConversation(done engine.Completion, convoID string) {
	if !s.ready() {
		done(engine.StatusErr, nil)
		return
	}
	conv, ok := s.store.GetConversation(convoID)
	if !ok {
		done(engine.StatusErr, nil)
		return
	}
	s.reply(done, models.ConversationDetail{
		Conversation: conv,
		Messages:     s.store.ListMessages(conv.ID, 0, 0),
	})
}

func (s *session) reply(done engine.Completion, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	done(engine.StatusOK, body)
}

func (s *session) emitPush(ev models.PushEvent) {
	s.mu.Lock()
	push := s.push
	s.mu.Unlock()
	if push == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode push event failed", "operation", "push", "error", err)
		return
	}
	push(engine.StatusOK, body)
}
