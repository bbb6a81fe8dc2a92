package chatsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chatsdk/go-backend/internal/engine"
	"chatsdk/go-backend/internal/platform/privacylog"
)

const componentName = "chatsdk"

// Sink receives canonical events. Deliver is called from engine goroutines,
// must not block and must not call back into the Client.
type Sink interface {
	Deliver(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Deliver(ev Event) { f(ev) }

type ClientOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

// Client owns one engine session and exposes its operations to a host. Every
// method returns immediately; nil means the engine accepted the call and its
// outcome will reach the Sink as an event, if at all.
type Client struct {
	engine     engine.Engine
	sink       Sink
	logger     *slog.Logger
	metrics    *Metrics
	correlator *Correlator
	translator *Translator
	life       *lifecycle
	now        func() time.Time

	pushMu    sync.Mutex
	pushToken *Token
}

func NewClient(eng engine.Engine, sink Sink, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = defaultLogger(os.Stdout)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	c := &Client{
		engine:     eng,
		sink:       sink,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		correlator: newCorrelatorWithClock(opts.Now),
		translator: newTranslatorWithClock(opts.Now),
		now:        opts.Now,
	}
	c.life = newLifecycle(c.onStageChange)
	c.metrics.setStage(StageUninitialized)
	return c
}

// defaultLogger is the sanitizing JSON logger used when the host supplies
// none, so secrets and identifiers are treated as in every other logger.
func defaultLogger(w io.Writer) *slog.Logger {
	return privacylog.New(w, slog.LevelInfo)
}

// Stage reports the current lifecycle stage.
func (c *Client) Stage() Stage {
	return c.life.current()
}

// Outstanding returns the accepted requests still waiting for a completion.
func (c *Client) Outstanding() []PendingRequest {
	return c.correlator.Outstanding()
}

// Initialize creates the engine session from an opaque JSON config.
func (c *Client) Initialize(config []byte) error {
	const kind = engine.KindInitialize

	c.life.gate.Lock()
	if err := c.life.beginInit(); err != nil {
		c.life.gate.Unlock()
		c.rejectOp(kind, err)
		return err
	}
	if len(config) == 0 || !json.Valid(config) {
		c.life.abortInit()
		c.life.gate.Unlock()
		c.rejectOp(kind, ErrInvalidConfig)
		return ErrInvalidConfig
	}

	token := c.correlator.Register(kind, nil)
	c.metrics.setOutstanding(c.correlator.Len())
	h, err := c.engine.Create(config, c.completionFor(token))
	if err != nil || h == nil {
		c.correlator.Discard(token)
		c.metrics.setOutstanding(c.correlator.Len())
		c.life.abortInit()
		c.life.gate.Unlock()
		err = createError(err)
		c.rejectOp(kind, err)
		return err
	}
	early, failed := c.life.attach(h)
	c.life.gate.Unlock()

	c.acceptOp(kind, token)
	if failed != nil {
		c.releaseFailedSession(failed)
	}
	if early != nil {
		c.emit(kind, token, early.status, early.payload, early.createdAt)
	}
	return nil
}

// createError maps a synchronous Create failure to the rejection a host sees:
// a config the engine refused is ErrInvalidConfig, anything else means the
// engine could not provide a session.
func createError(err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, engine.ErrCreateFailed)
	case errors.Is(err, engine.ErrInvalidConfig):
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}

// Start asks the engine to bring up networking. Legal when Ready or Stopped.
func (c *Client) Start() error {
	h, err := c.life.acquire(ErrNotInitialized, StageReady, StageStopped)
	if err != nil {
		c.rejectOp(engine.KindStart, err)
		return err
	}
	defer c.life.release()
	return c.forward(engine.KindStart, nil, func(done engine.Completion) engine.Status {
		return c.engine.Start(h, done)
	})
}

// Stop asks the engine to shut down networking. Legal only when Started.
func (c *Client) Stop() error {
	h, err := c.life.acquire(ErrNotStarted, StageStarted)
	if err != nil {
		c.rejectOp(engine.KindStop, err)
		return err
	}
	defer c.life.release()
	return c.forward(engine.KindStop, nil, func(done engine.Completion) engine.Status {
		return c.engine.Stop(h, done)
	})
}

// Destroy ends the session. The handle is invalid as soon as the engine
// accepts; requests still outstanding stay unresolved.
func (c *Client) Destroy() error {
	const kind = engine.KindDestroy

	h, err := c.life.acquireExclusive(ErrNotInitialized, StageReady, StageStarted, StageStopped)
	if err != nil {
		c.rejectOp(kind, err)
		return err
	}
	defer c.life.releaseExclusive()

	err = c.forward(kind, nil, func(done engine.Completion) engine.Status {
		return c.engine.Destroy(h, done)
	})
	if err != nil {
		return err
	}
	c.life.markDestroyed()
	c.releasePush()
	return nil
}

// RegisterPushHandler subscribes to engine push notifications. A second call
// on the same session is accepted without subscribing again.
func (c *Client) RegisterPushHandler() error {
	const kind = engine.KindPush

	h, err := c.life.acquire(ErrNotInitialized, StageReady, StageStarted, StageStopped)
	if err != nil {
		c.rejectOp(kind, err)
		return err
	}
	defer c.life.release()

	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.pushToken != nil {
		c.logDebug(kind, c.pushToken.String(), "push handler already registered")
		return nil
	}
	token := c.correlator.RegisterPersistent(kind, nil)
	c.pushToken = &token
	c.engine.SubscribeEvents(h, c.completionFor(token))
	c.acceptOp(kind, token)
	return nil
}

func (c *Client) GetID() error {
	return c.request(engine.KindGetID, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.GetID(h, done)
	})
}

func (c *Client) GetDefaultInboxID() error {
	return c.request(engine.KindGetDefaultInboxID, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.GetDefaultInboxID(h, done)
	})
}

func (c *Client) ListConversations() error {
	return c.request(engine.KindListConversations, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.ListConversations(h, done)
	})
}

func (c *Client) GetConversation(convoID string) error {
	return c.request(engine.KindGetConversation, convoID, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.GetConversation(h, done, convoID)
	})
}

// NewPrivateConversation opens a conversation with the owner of introBundle
// and sends contentHex as its first message.
func (c *Client) NewPrivateConversation(introBundle, contentHex string) error {
	return c.request(engine.KindNewPrivateConversation, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.NewPrivateConversation(h, done, introBundle, contentHex)
	})
}

func (c *Client) SendMessage(convoID, contentHex string) error {
	return c.request(engine.KindSendMessage, convoID, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.SendMessage(h, done, convoID, contentHex)
	})
}

func (c *Client) GetIdentity() error {
	return c.request(engine.KindGetIdentity, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.GetIdentity(h, done)
	})
}

func (c *Client) CreateIntroBundle() error {
	return c.request(engine.KindCreateIntroBundle, nil, func(h engine.Handle, done engine.Completion) engine.Status {
		return c.engine.CreateIntroBundle(h, done)
	})
}

func (c *Client) request(kind engine.Kind, context any, call func(engine.Handle, engine.Completion) engine.Status) error {
	h, err := c.life.acquire(ErrNotInitialized, StageReady, StageStarted, StageStopped)
	if err != nil {
		c.rejectOp(kind, err)
		return err
	}
	defer c.life.release()
	return c.forward(kind, context, func(done engine.Completion) engine.Status {
		return call(h, done)
	})
}

// forward registers a pending request and hands the bound completion to the
// engine. A synchronous reject leaves nothing registered.
func (c *Client) forward(kind engine.Kind, context any, call func(engine.Completion) engine.Status) error {
	token := c.correlator.Register(kind, context)
	c.metrics.setOutstanding(c.correlator.Len())

	status := call(c.completionFor(token))
	if !status.OK() {
		c.correlator.Discard(token)
		c.metrics.setOutstanding(c.correlator.Len())
		err := &RejectedError{Kind: kind, Status: status}
		c.rejectOp(kind, err)
		return err
	}
	c.acceptOp(kind, token)
	return nil
}

func (c *Client) completionFor(token Token) engine.Completion {
	return func(status engine.Status, payload []byte) {
		c.handleCompletion(token, status, payload)
	}
}

func (c *Client) handleCompletion(token Token, status engine.Status, payload []byte) {
	req, err := c.correlator.Resolve(token)
	if err != nil {
		c.metrics.unknownToken()
		c.logWarn("completion", token.String(), "completion for unknown token dropped", "status", status.String())
		return
	}
	if !req.Persistent {
		c.metrics.setOutstanding(c.correlator.Len())
	}

	switch req.Kind {
	case engine.KindInitialize:
		failed, deferred := c.life.completeInit(pendingInit{
			status:    status,
			payload:   append([]byte(nil), payload...),
			createdAt: req.CreatedAt,
		})
		if deferred {
			return
		}
		if failed != nil {
			c.releaseFailedSession(failed)
		}
	case engine.KindStart:
		c.life.completeStart(status)
	case engine.KindStop:
		c.life.completeStop()
	}
	c.emit(req.Kind, token, status, payload, req.CreatedAt)
}

func (c *Client) emit(kind engine.Kind, token Token, status engine.Status, payload []byte, createdAt time.Time) {
	ev, ok := c.translator.Translate(kind, status, payload)
	c.metrics.completion(kind, ok, c.now().Sub(createdAt))
	if !ok {
		c.logDebug(kind, token.String(), "completion produced no event", "status", status.String())
		return
	}
	c.sink.Deliver(ev)
}

// releaseFailedSession frees a handle whose initialization failed. The handle
// is already detached from the lifecycle, so nothing else can reach it.
func (c *Client) releaseFailedSession(h engine.Handle) {
	if status := c.engine.Destroy(h, nil); !status.OK() {
		c.logWarn(string(engine.KindDestroy), h.ID(), "failed session release rejected", "status", status.String())
	}
}

func (c *Client) releasePush() {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.pushToken == nil {
		return
	}
	c.correlator.Release(*c.pushToken)
	c.pushToken = nil
}

func (c *Client) onStageChange(from, to Stage) {
	c.metrics.setStage(to)
	c.logger.Info("lifecycle transition",
		"component", componentName,
		"from", string(from),
		"to", string(to),
	)
}

func (c *Client) acceptOp(kind engine.Kind, token Token) {
	c.metrics.accepted(kind)
	c.logDebug(kind, token.String(), "operation accepted")
}

func (c *Client) rejectOp(kind engine.Kind, err error) {
	c.metrics.rejected(kind, err)
	c.logWarn(string(kind), "n/a", "operation rejected", "reason", Reason(err), "error", err.Error())
}

func (c *Client) logDebug(kind engine.Kind, correlationID, message string, attrs ...any) {
	base := []any{
		"component", componentName,
		"operation", string(kind),
		"correlation_id", strings.TrimSpace(correlationID),
	}
	c.logger.Debug(message, append(base, attrs...)...)
}

func (c *Client) logWarn(operation, correlationID, message string, attrs ...any) {
	base := []any{
		"component", componentName,
		"operation", strings.TrimSpace(operation),
		"correlation_id", strings.TrimSpace(correlationID),
	}
	c.logger.Warn(message, append(base, attrs...)...)
}
