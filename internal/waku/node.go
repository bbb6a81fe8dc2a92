// Package waku moves private chat messages between inboxes, either over an
// in-process bus or over go-waku relay when built with the real_waku tag.
package waku

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDegraded     = "degraded"
)

var (
	ErrNotConnected       = errors.New("waku not connected")
	ErrIdentityNotSet     = errors.New("identity is not set")
	ErrRecipientRequired  = errors.New("recipient is required")
	ErrBackendUnavailable = errors.New("go-waku backend is not available in this build")
)

var (
	runtimeStatusPollInterval = 1 * time.Second
	mockStartupDelay          = 10 * time.Millisecond
)

type Status struct {
	State            string    `json:"state"`
	PeerCount        int       `json:"peerCount"`
	LastSync         time.Time `json:"lastSync"`
	StateTransitions int       `json:"stateTransitions"`
}

func online(state string) bool {
	return state == StateConnected || state == StateDegraded
}

// Node is one inbox's attachment to the transport. With the mock transport it
// talks to a Bus; with go-waku it drives a relayBackend and polls its peer
// count to move between connected and degraded.
type Node struct {
	mu      sync.RWMutex
	cfg     Config
	log     *slog.Logger
	status  Status
	selfID  string
	handler func(PrivateMessage)
	relay   relayBackend
	bus     *Bus

	monitorCancel context.CancelFunc
	monitorWG     sync.WaitGroup
}

type relayBackend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	PeerCount() int
	SetIdentity(inboxID string)
	ListenAddresses() []string
	SubscribePrivate(handler func(PrivateMessage)) error
	PublishPrivate(ctx context.Context, msg PrivateMessage) error
	FetchPrivateSince(ctx context.Context, recipient string, since time.Time, limit int) ([]PrivateMessage, error)
}

// NewNode builds a stopped node. A nil bus selects DefaultBus for the mock
// transport.
func NewNode(cfg Config, bus *Bus) *Node {
	if bus == nil {
		bus = DefaultBus()
	}
	cfg = normalizeConfig(cfg)
	return &Node{
		cfg:    cfg,
		log:    cfg.Logger.With("component", "waku", "transport", cfg.Transport),
		status: Status{State: StateDisconnected},
		bus:    bus,
	}
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.transitionStateLocked(StateConnecting)
	n.status.LastSync = time.Now()
	cfg := n.cfg
	n.mu.Unlock()

	var err error
	if cfg.Transport == TransportGoWaku {
		err = n.startRelay(ctx, cfg)
	} else {
		err = n.startMock(ctx, cfg)
	}
	if err != nil {
		n.setDisconnected()
	}
	return err
}

func (n *Node) startMock(ctx context.Context, cfg Config) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mockStartupDelay):
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitionStateLocked(StateConnected)
	n.status.PeerCount = estimatedPeers(cfg)
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) startRelay(ctx context.Context, cfg Config) error {
	backend := newGoWakuBackend()
	if backend == nil {
		return ErrBackendUnavailable
	}
	if err := backend.Start(ctx, cfg); err != nil {
		return err
	}
	peers := backend.PeerCount()
	if cfg.FailoverV1 {
		var err error
		if peers, err = waitForStartupPeerCount(ctx, backend, cfg); err != nil {
			backend.Stop()
			return err
		}
	}

	n.mu.Lock()
	n.relay = backend
	if n.selfID != "" {
		backend.SetIdentity(n.selfID)
	}
	n.transitionStateLocked(startupStateFromPeerCount(peers, cfg))
	n.status.PeerCount = peers
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	n.startRuntimeMonitor()
	return nil
}

// Stop detaches the inbox. Mock messages published afterwards wait in the bus
// mailbox for the next subscription.
func (n *Node) Stop(_ context.Context) error {
	n.stopRuntimeMonitor()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.relay != nil {
		n.relay.Stop()
		n.relay = nil
	}
	if n.selfID != "" {
		n.bus.unsubscribe(n.selfID)
	}
	n.handler = nil
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.status
	if n.relay != nil {
		s.PeerCount = n.relay.PeerCount()
	}
	return s
}

func (n *Node) Connected() bool {
	return online(n.Status().State)
}

// SetIdentity sets the inbox this node receives for.
func (n *Node) SetIdentity(inboxID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.selfID = inboxID
	if n.relay != nil {
		n.relay.SetIdentity(inboxID)
	}
}

func (n *Node) SubscribePrivate(handler func(PrivateMessage)) error {
	n.mu.Lock()
	up := online(n.status.State)
	selfID := n.selfID
	backend := n.relay
	if up {
		n.handler = handler
	}
	n.mu.Unlock()

	switch {
	case !up:
		return ErrNotConnected
	case selfID == "":
		return ErrIdentityNotSet
	case backend != nil:
		return backend.SubscribePrivate(handler)
	}
	n.bus.subscribe(selfID, handler)
	return nil
}

func (n *Node) PublishPrivate(ctx context.Context, msg PrivateMessage) error {
	n.mu.RLock()
	up := online(n.status.State)
	backend := n.relay
	n.mu.RUnlock()
	switch {
	case !up:
		return ErrNotConnected
	case msg.Recipient == "":
		return ErrRecipientRequired
	case backend != nil:
		return backend.PublishPrivate(ctx, msg)
	}
	n.bus.publish(msg)
	return nil
}

func (n *Node) ListenAddresses() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.relay == nil {
		return nil
	}
	return append([]string(nil), n.relay.ListenAddresses()...)
}

// FetchPrivateSince queries the store for messages missed while offline. The
// mock transport hands those over through the mailbox on subscribe instead.
func (n *Node) FetchPrivateSince(ctx context.Context, recipient string, since time.Time, limit int) ([]PrivateMessage, error) {
	n.mu.RLock()
	up := online(n.status.State)
	backend := n.relay
	n.mu.RUnlock()
	switch {
	case !up:
		return nil, ErrNotConnected
	case recipient == "":
		return nil, ErrRecipientRequired
	case backend == nil:
		return nil, nil
	}
	return backend.FetchPrivateSince(ctx, recipient, since, limit)
}

func (n *Node) setDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
}

func (n *Node) startRuntimeMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	n.mu.Lock()
	if n.monitorCancel != nil {
		n.monitorCancel()
	}
	n.monitorCancel = cancel
	n.mu.Unlock()

	n.monitorWG.Add(1)
	go func() {
		defer n.monitorWG.Done()
		ticker := time.NewTicker(runtimeStatusPollInterval)
		defer ticker.Stop()
		for {
			n.refreshRuntimeStatus()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (n *Node) stopRuntimeMonitor() {
	n.mu.Lock()
	cancel := n.monitorCancel
	n.monitorCancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		n.monitorWG.Wait()
	}
}

func (n *Node) refreshRuntimeStatus() {
	n.mu.RLock()
	backend := n.relay
	n.mu.RUnlock()
	if backend == nil {
		return
	}
	peers := backend.PeerCount()
	next := StateConnected
	if peers <= 0 {
		next = StateDegraded
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.State == StateDisconnected {
		return
	}
	if n.status.State != next || n.status.PeerCount != peers {
		n.transitionStateLocked(next)
		n.status.PeerCount = peers
		n.status.LastSync = time.Now()
	}
}

func (n *Node) transitionStateLocked(next string) {
	if next == "" || n.status.State == next {
		return
	}
	n.log.Debug("transport state changed", "from", n.status.State, "to", next)
	n.status.StateTransitions++
	n.status.State = next
}

// estimatedPeers is the peer count the mock transport reports: one per
// bootstrap node, between one and twelve.
func estimatedPeers(cfg Config) int {
	return min(max(len(cfg.BootstrapNodes), 1), 12)
}
