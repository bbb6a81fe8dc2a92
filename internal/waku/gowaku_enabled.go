//go:build real_waku

package waku

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/waku-org/go-waku/waku/persistence"
	"github.com/waku-org/go-waku/waku/persistence/sqlite"
	wakuNode "github.com/waku-org/go-waku/waku/v2/node"
	"github.com/waku-org/go-waku/waku/v2/protocol"
	legacyStore "github.com/waku-org/go-waku/waku/v2/protocol/legacy_store"
	wpb "github.com/waku-org/go-waku/waku/v2/protocol/pb"
	"github.com/waku-org/go-waku/waku/v2/protocol/relay"
	"github.com/waku-org/go-waku/waku/v2/utils"
)

var errRelayStopped = errors.New("go-waku relay is not running")

// relayNode carries private messages over go-waku relay, one content topic per
// inbox, and answers catch-up queries from store peers.
type relayNode struct {
	mu         sync.RWMutex
	node       *wakuNode.WakuNode
	cfg        Config
	log        *slog.Logger
	inbox      string
	redial     context.CancelFunc
	redialDone sync.WaitGroup
}

func newGoWakuBackend() relayBackend {
	return &relayNode{}
}

func (r *relayNode) Start(ctx context.Context, cfg Config) error {
	node, err := wakuNode.New(nodeOptions(cfg)...)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return err
	}
	log := cfg.Logger.With("component", "waku")
	for _, addr := range cfg.BootstrapNodes {
		if err := node.DialPeer(ctx, addr); err != nil {
			log.Warn("bootstrap dial failed", "peer_addr", addr, "error", err)
		}
	}

	r.mu.Lock()
	r.node, r.cfg, r.log = node, cfg, log
	r.mu.Unlock()
	if cfg.FailoverV1 && len(cfg.BootstrapNodes) > 0 {
		r.startRedialLoop()
	}
	return nil
}

func nodeOptions(cfg Config) []wakuNode.WakuNodeOption {
	host := &net.TCPAddr{IP: net.IPv4zero, Port: cfg.Port}
	opts := []wakuNode.WakuNodeOption{wakuNode.WithHostAddress(host)}
	if cfg.EnableRelay {
		opts = append(opts, wakuNode.WithWakuRelay())
	}
	if cfg.EnableStore {
		if provider := newMessageProvider(cfg); provider != nil {
			opts = append(opts, wakuNode.WithMessageProvider(provider))
		}
		opts = append(opts, wakuNode.WithWakuStore())
	}
	if cfg.EnableFilter {
		opts = append(opts, wakuNode.WithWakuFilterLightNode(), wakuNode.WithWakuFilterFullNode())
	}
	if cfg.EnableLightPush {
		opts = append(opts, wakuNode.WithLightPush())
	}
	return opts
}

// newMessageProvider keeps relayed messages in an in-memory sqlite store so the
// node can serve history to peers that were offline. Nil means the node serves
// no history of its own.
func newMessageProvider(cfg Config) *persistence.DBStore {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	db, err := sqlite.NewDB(":memory:", utils.Logger())
	if err != nil {
		cfg.Logger.Warn("history store unavailable", "component", "waku", "error", err)
		return nil
	}
	store, err := persistence.NewDBStore(reg, utils.Logger(),
		persistence.WithDB(db),
		persistence.WithMigrations(sqlite.Migrations),
	)
	if err != nil {
		cfg.Logger.Warn("history store unavailable", "component", "waku", "error", err)
		return nil
	}
	return store
}

func (r *relayNode) Stop() {
	r.mu.Lock()
	cancel := r.redial
	r.redial = nil
	node := r.node
	r.node = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.redialDone.Wait()
	}
	if node != nil {
		node.Stop()
	}
}

func (r *relayNode) running() (*wakuNode.WakuNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.node == nil {
		return nil, errRelayStopped
	}
	return r.node, nil
}

func (r *relayNode) PeerCount() int {
	node, err := r.running()
	if err != nil {
		return 0
	}
	return node.PeerCount()
}

func (r *relayNode) SetIdentity(inboxID string) {
	r.mu.Lock()
	r.inbox = inboxID
	r.mu.Unlock()
}

func (r *relayNode) ListenAddresses() []string {
	node, err := r.running()
	if err != nil {
		return nil
	}
	var out []string
	for _, addr := range node.ListenAddresses() {
		out = append(out, addr.String())
	}
	return out
}

func (r *relayNode) SubscribePrivate(handler func(PrivateMessage)) error {
	node, err := r.running()
	if err != nil {
		return err
	}
	r.mu.RLock()
	inbox, topic := r.inbox, r.cfg.PubsubTopic
	r.mu.RUnlock()
	if inbox == "" {
		return ErrIdentityNotSet
	}

	filter := protocol.NewContentFilter(topic, InboxContentTopic(inbox))
	subs, err := node.Relay().Subscribe(context.Background(), filter)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		go r.deliver(sub, inbox, handler)
	}
	return nil
}

// deliver runs until go-waku closes the subscription channel on node stop.
func (r *relayNode) deliver(sub *relay.Subscription, inbox string, handler func(PrivateMessage)) {
	for env := range sub.Ch {
		if env == nil || env.Message() == nil {
			continue
		}
		var msg PrivateMessage
		if err := json.Unmarshal(env.Message().Payload, &msg); err != nil || msg.Recipient != inbox {
			continue
		}
		handler(msg)
	}
}

func (r *relayNode) PublishPrivate(ctx context.Context, msg PrivateMessage) error {
	node, err := r.running()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.mu.RLock()
	topic := r.cfg.PubsubTopic
	r.mu.RUnlock()
	now := time.Now().UnixNano()
	_, err = node.Relay().Publish(ctx, &wpb.WakuMessage{
		Payload:      payload,
		ContentTopic: InboxContentTopic(msg.Recipient),
		Timestamp:    &now,
	}, relay.WithPubSubTopic(topic))
	return err
}

// FetchPrivateSince asks store peers for the recipient's inbox history. Peers
// are tried in historyPeers order until one answers; pages are then followed
// until the store is exhausted or limit messages were collected.
func (r *relayNode) FetchPrivateSince(ctx context.Context, recipient string, since time.Time, limit int) ([]PrivateMessage, error) {
	node, err := r.running()
	if err != nil {
		return nil, err
	}
	if recipient == "" {
		return nil, ErrRecipientRequired
	}
	r.mu.RLock()
	cfg, log := r.cfg, r.log
	r.mu.RUnlock()

	collector := newHistoryCollector(recipient, limit)
	start, end := since.UnixNano(), time.Now().UnixNano()
	query := legacyStore.Query{
		PubsubTopic:   cfg.PubsubTopic,
		ContentTopics: []string{InboxContentTopic(recipient)},
		StartTime:     &start,
		EndTime:       &end,
	}

	var result *legacyStore.Result
	peers := historyPeers(cfg.BootstrapNodes, cfg.StoreQueryFanout, cfg.FailoverV1)
	for attempt, addr := range peers {
		opts := []legacyStore.HistoryRequestOption{legacyStore.WithPaging(true, uint64(collector.limit))}
		if addr != "" {
			peerAddr, parseErr := ma.NewMultiaddr(addr)
			if parseErr != nil {
				continue
			}
			opts = append(opts, legacyStore.WithPeerAddr(peerAddr))
		}
		result, err = node.LegacyStore().Query(ctx, query, opts...)
		if err == nil {
			if attempt > 0 {
				log.Info("history query recovered on another peer", "attempt", attempt+1)
			}
			break
		}
		log.Warn("history query failed", "peer_addr", addr, "attempt", attempt+1, "error", err)
	}
	if result == nil {
		if err == nil {
			err = errRelayStopped
		}
		return nil, err
	}

	for {
		for _, wm := range result.Messages {
			if wm != nil {
				collector.add(wm.Payload)
			}
		}
		if result.IsComplete() || collector.full() {
			return collector.messages(), nil
		}
		if result, err = node.LegacyStore().Next(ctx, result); err != nil {
			return nil, err
		}
	}
}

// startRedialLoop keeps the node near its peer target by redialing bootstrap
// nodes in random order on a redialSchedule.
func (r *relayNode) startRedialLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.redial = cancel
	cfg := r.cfg
	r.mu.Unlock()

	r.redialDone.Add(1)
	go func() {
		defer r.redialDone.Done()
		schedule := newRedialSchedule(cfg, func(d time.Duration) time.Duration {
			return rand.N(d)
		})
		ticker := time.NewTicker(cfg.ReconnectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if !schedule.due(now) {
					continue
				}
				if r.PeerCount() >= peerTarget(cfg) || r.redialBootstrap(ctx, cfg.BootstrapNodes) {
					schedule.reset(now)
					continue
				}
				schedule.failed(now)
			}
		}
	}()
}

func (r *relayNode) redialBootstrap(ctx context.Context, bootstrap []string) bool {
	node, err := r.running()
	if err != nil {
		return false
	}
	order := rand.Perm(len(bootstrap))
	dialed := false
	for _, i := range order {
		addr := bootstrap[i]
		if err := node.DialPeer(ctx, addr); err != nil {
			r.log.Warn("peer redial failed", "peer_addr", addr, "error", err)
			continue
		}
		r.log.Info("peer redial succeeded", "peer_addr", addr)
		dialed = true
	}
	return dialed
}
