package waku

import (
	"context"
	"time"
)

// peerTarget is how many peers a go-waku node wants. An explicit MinPeers wins;
// otherwise one bootstrap node means one peer and more mean two. The target
// never exceeds the number of bootstrap nodes.
func peerTarget(cfg Config) int {
	target := cfg.MinPeers
	if target <= 0 {
		switch n := len(cfg.BootstrapNodes); {
		case n == 0:
			return 0
		case n == 1:
			target = 1
		default:
			target = 2
		}
	}
	if n := len(cfg.BootstrapNodes); n > 0 && target > n {
		target = n
	}
	return target
}

// startupPeerTarget is the peer count Start waits for before reporting
// connected rather than degraded. A node always waits for at least one.
func startupPeerTarget(cfg Config) int {
	if target := peerTarget(cfg); target > 0 {
		return target
	}
	return 1
}

func startupStateFromPeerCount(peerCount int, cfg Config) string {
	if peerCount >= startupPeerTarget(cfg) {
		return StateConnected
	}
	return StateDegraded
}

// startupHandshakeTimeout bounds the startup wait to five reconnect
// intervals, at least two seconds and at most the backoff ceiling.
func startupHandshakeTimeout(cfg Config) time.Duration {
	base := cfg.ReconnectInterval
	if base <= 0 {
		base = time.Second
	}
	timeout := max(5*base, 2*time.Second)
	if cfg.ReconnectBackoffMax > 0 {
		timeout = min(timeout, cfg.ReconnectBackoffMax)
	}
	return timeout
}

// waitForStartupPeerCount polls backend until it reaches the startup target or
// the handshake window closes. Running out of time is not an error; the caller
// starts degraded.
func waitForStartupPeerCount(ctx context.Context, backend relayBackend, cfg Config) (int, error) {
	target := startupPeerTarget(cfg)
	if count := backend.PeerCount(); count >= target {
		return count, nil
	}
	deadline := time.NewTimer(startupHandshakeTimeout(cfg))
	defer deadline.Stop()
	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return backend.PeerCount(), ctx.Err()
		case <-deadline.C:
			return backend.PeerCount(), nil
		case <-poll.C:
			if count := backend.PeerCount(); count >= target {
				return count, nil
			}
		}
	}
}

// redialSchedule spaces out bootstrap redial rounds. Each failed round doubles
// the wait up to the ceiling plus up to half of it as jitter; a successful round
// or a healthy peer count resets it.
type redialSchedule struct {
	base    time.Duration
	ceiling time.Duration
	wait    time.Duration
	next    time.Time
	jitter  func(time.Duration) time.Duration
}

func newRedialSchedule(cfg Config, jitter func(time.Duration) time.Duration) *redialSchedule {
	return &redialSchedule{
		base:    cfg.ReconnectInterval,
		ceiling: cfg.ReconnectBackoffMax,
		wait:    cfg.ReconnectInterval,
		jitter:  jitter,
	}
}

func (r *redialSchedule) due(now time.Time) bool {
	return !now.Before(r.next)
}

func (r *redialSchedule) reset(now time.Time) {
	r.wait = r.base
	r.next = now
}

func (r *redialSchedule) failed(now time.Time) {
	r.wait = min(2*r.wait, r.ceiling)
	var extra time.Duration
	if r.jitter != nil && r.wait >= 2 {
		extra = r.jitter(r.wait / 2)
	}
	r.next = now.Add(r.wait + extra)
}
