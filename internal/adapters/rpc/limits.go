package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"chatsdk/go-backend/internal/config"

	"golang.org/x/sync/semaphore"
)

// clientKey identifies a caller for rate and stream limits: its token when it
// sent one, else its remote host.
func clientKey(r *http.Request, token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return "token:" + token
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = strings.TrimSpace(h)
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rpcStreamLimiter caps concurrent event streams globally and per client. A
// nil limiter admits everything.
type rpcStreamLimiter struct {
	global       *semaphore.Weighted
	open         atomic.Int64
	maxPerClient int

	mu       sync.Mutex
	byClient map[string]int
}

func newRPCStreamLimiter(cfg config.StreamConfig) *rpcStreamLimiter {
	if cfg.MaxGlobal <= 0 || cfg.MaxPerClient <= 0 {
		return nil
	}
	return &rpcStreamLimiter{
		global:       semaphore.NewWeighted(int64(cfg.MaxGlobal)),
		maxPerClient: cfg.MaxPerClient,
		byClient:     make(map[string]int),
	}
}

// acquire reserves a stream slot for key. The returned release is safe to
// call more than once.
func (l *rpcStreamLimiter) acquire(key string) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byClient[key] >= l.maxPerClient || !l.global.TryAcquire(1) {
		return nil, false
	}
	l.byClient[key]++
	l.open.Add(1)

	var once sync.Once
	return func() { once.Do(func() { l.release(key) }) }, true
}

func (l *rpcStreamLimiter) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byClient[key]--; l.byClient[key] <= 0 {
		delete(l.byClient, key)
	}
	l.open.Add(-1)
	l.global.Release(1)
}

func (l *rpcStreamLimiter) active() int {
	if l == nil {
		return 0
	}
	return int(l.open.Load())
}
