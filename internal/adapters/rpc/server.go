// Package rpc exposes a chat client to local hosts over JSON-RPC 2.0 with a
// Server-Sent Events stream of canonical events.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
	"chatsdk/go-backend/internal/config"
	"chatsdk/go-backend/internal/notify"
	"chatsdk/go-backend/internal/platform/ratelimiter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	componentName          = "rpc"
	defaultHeartbeat       = 20 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

var ErrTokenRequired = errors.New("rpc token is required unless CHAT_REQUIRE_RPC_TOKEN=false or CHAT_ENV is test/development/local")

// Chat is the part of chatsdk.Client the server drives.
type Chat interface {
	Initialize(config []byte) error
	Start() error
	Stop() error
	Destroy() error
	RegisterPushHandler() error
	GetID() error
	GetDefaultInboxID() error
	ListConversations() error
	GetConversation(convoID string) error
	NewPrivateConversation(introBundle, contentHex string) error
	SendMessage(convoID, contentHex string) error
	GetIdentity() error
	CreateIntroBundle() error
	Stage() chatsdk.Stage
	Outstanding() []chatsdk.PendingRequest
}

// Events is the notification source behind /rpc/stream.
type Events interface {
	Subscribe(fromSeq int64) ([]notify.Notification, <-chan notify.Notification, func())
	BacklogSize() int
	Subscribers() int
}

type Options struct {
	Addr            string
	Token           string
	TokenFile       string
	RequireToken    bool
	AllowNullOrigin bool
	RateLimit       config.RateLimitConfig
	Streams         config.StreamConfig
	// EngineConfig is used by initChat calls that carry no config.
	EngineConfig []byte
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
	Heartbeat    time.Duration
}

type Server struct {
	httpServer      *http.Server
	chat            Chat
	events          Events
	logger          *slog.Logger
	rpcToken        string
	requireRPC      bool
	allowNullOrigin bool
	engineConfig    []byte
	heartbeat       time.Duration
	rpcLimiter      *ratelimiter.MapLimiter
	streams         *rpcStreamLimiter

	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(chat Chat, events Events, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if opts.Addr == "" {
		opts.Addr = config.DefaultRPCAddr
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	token, err := resolveRPCToken(opts.Token, opts.TokenFile)
	if err != nil {
		return nil, err
	}
	if opts.RequireToken && token == "" {
		return nil, ErrTokenRequired
	}

	var limiter *ratelimiter.MapLimiter
	if opts.RateLimit.Enabled {
		limiter = ratelimiter.New(opts.RateLimit.RPS, opts.RateLimit.Burst, 0)
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		chat:            chat,
		events:          events,
		logger:          opts.Logger.With("component", componentName),
		rpcToken:        token,
		requireRPC:      opts.RequireToken,
		allowNullOrigin: opts.AllowNullOrigin,
		engineConfig:    append([]byte(nil), opts.EngineConfig...),
		heartbeat:       opts.Heartbeat,
		rpcLimiter:      limiter,
		streams:         newRPCStreamLimiter(opts.Streams),
		closing:         make(chan struct{}),
	}
	s.httpServer.RegisterOnShutdown(s.closeStreams)
	if s.rpcToken == "" {
		s.logger.Warn("rpc token is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.HandleFunc("/rpc", s.HandleRPC)
	mux.HandleFunc("/rpc/stream", s.HandleRPCStream)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s, nil
}

// Handler returns the server's routes, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Token is the token callers must present, after "auto" was resolved.
func (s *Server) Token() string {
	return s.rpcToken
}

// closeStreams ends every open event stream so shutdown does not wait on them.
func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
