package waku

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TransportMock   = "mock"
	TransportGoWaku = "go-waku"
)

type Config struct {
	Transport           string
	Port                int
	PubsubTopic         string
	EnableRelay         bool
	EnableStore         bool
	EnableFilter        bool
	EnableLightPush     bool
	BootstrapNodes      []string
	FailoverV1          bool
	MinPeers            int
	StoreQueryFanout    int
	ReconnectInterval   time.Duration
	ReconnectBackoffMax time.Duration

	// Logger and Registerer serve the go-waku backend. Nil values select
	// slog.Default and a registry private to the node.
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Transport:           TransportMock,
		Port:                60000,
		PubsubTopic:         DefaultPubsubTopic,
		EnableRelay:         true,
		EnableStore:         true,
		EnableFilter:        true,
		EnableLightPush:     true,
		FailoverV1:          true,
		MinPeers:            2,
		StoreQueryFanout:    3,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = def.Transport
	}
	if cfg.PubsubTopic = strings.TrimSpace(cfg.PubsubTopic); cfg.PubsubTopic == "" {
		cfg.PubsubTopic = def.PubsubTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StoreQueryFanout <= 0 {
		cfg.StoreQueryFanout = def.StoreQueryFanout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = cfg.ReconnectInterval
	}
	if cfg.MinPeers < 0 {
		cfg.MinPeers = 0
	}
	nodes := make([]string, 0, len(cfg.BootstrapNodes))
	for _, addr := range cfg.BootstrapNodes {
		if addr = strings.TrimSpace(addr); addr != "" {
			nodes = append(nodes, addr)
		}
	}
	cfg.BootstrapNodes = nodes
	return cfg
}

// ValidateConfig rejects unknown transports, foreign pubsub topics, out of
// range ports and bootstrap entries that are not multiaddrs.
func ValidateConfig(cfg Config) error {
	cfg = normalizeConfig(cfg)
	var errs []error
	switch cfg.Transport {
	case TransportMock, TransportGoWaku:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", cfg.Transport))
	}
	if !strings.HasPrefix(cfg.PubsubTopic, "/waku/2/") {
		errs = append(errs, fmt.Errorf("pubsub topic %q is not a waku v2 topic", cfg.PubsubTopic))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	for _, addr := range cfg.BootstrapNodes {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap node %q: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}
