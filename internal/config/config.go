// Package config loads the daemon configuration from YAML with CHAT_*
// environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCAddr        = "127.0.0.1:8787"
	DefaultEventBacklog   = 512
	DefaultStaleAfter     = 2 * time.Minute
	DefaultStaleInterval  = 30 * time.Second
	defaultRateLimitRPS   = 30
	defaultRateLimitBurst = 60
	defaultStreamsGlobal  = 128
	defaultStreamsClient  = 8
)

var defaultCandidates = []string{
	"go-backend/configs/config.yaml",
	"configs/config.yaml",
}

type Config struct {
	Env         string            `yaml:"env"`
	RPC         RPCConfig         `yaml:"rpc"`
	Events      EventsConfig      `yaml:"events"`
	Session     SessionConfig     `yaml:"session"`
	Engine      map[string]any    `yaml:"engine"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Log         LogConfig         `yaml:"log"`
}

type RPCConfig struct {
	Addr            string          `yaml:"addr"`
	Token           string          `yaml:"token"`
	TokenFile       string          `yaml:"tokenFile"`
	RequireToken    *bool           `yaml:"requireToken"`
	AllowNullOrigin bool            `yaml:"allowNullOrigin"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
	Streams         StreamConfig    `yaml:"streams"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type StreamConfig struct {
	MaxGlobal    int `yaml:"maxGlobal"`
	MaxPerClient int `yaml:"maxPerClient"`
}

type EventsConfig struct {
	// Prefix is prepended to canonical event names on the host wire.
	Prefix  string `yaml:"prefix"`
	Backlog int    `yaml:"backlog"`
}

// SessionConfig drives what the daemon does with the engine before any host
// call arrives.
type SessionConfig struct {
	AutoInitialize bool `yaml:"autoInitialize"`
	AutoStart      bool `yaml:"autoStart"`
	SubscribePush  bool `yaml:"subscribePush"`
}

type DiagnosticsConfig struct {
	StaleAfter    time.Duration `yaml:"staleAfter"`
	StaleInterval time.Duration `yaml:"staleInterval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		RPC: RPCConfig{
			Addr: DefaultRPCAddr,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     defaultRateLimitRPS,
				Burst:   defaultRateLimitBurst,
			},
			Streams: StreamConfig{
				MaxGlobal:    defaultStreamsGlobal,
				MaxPerClient: defaultStreamsClient,
			},
		},
		Events: EventsConfig{Backlog: DefaultEventBacklog},
		Session: SessionConfig{
			SubscribePush: true,
		},
		Engine: map[string]any{},
		Diagnostics: DiagnosticsConfig{
			StaleAfter:    DefaultStaleAfter,
			StaleInterval: DefaultStaleInterval,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path, or the first default candidate that exists when path is
// empty, then applies environment overrides. A missing explicit path is an
// error; missing default candidates are not.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := defaultCandidates
	if path != "" {
		candidates = []string{path}
	}
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if path != "" {
				return Config{}, fmt.Errorf("read config %s: %w", candidate, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays CHAT_* environment variables on cfg. Values
// that fail to parse are ignored; only a malformed CHAT_ENGINE_CONFIG is an
// error.
func ApplyEnvOverrides(cfg *Config) error {
	overrideString(&cfg.Env, "CHAT_ENV")
	overrideString(&cfg.Log.Level, "CHAT_LOG_LEVEL")

	rpc := &cfg.RPC
	overrideString(&rpc.Addr, "CHAT_RPC_ADDR")
	overrideString(&rpc.Token, "CHAT_RPC_TOKEN")
	overrideString(&rpc.TokenFile, "CHAT_RPC_TOKEN_FILE")
	envOverride(&rpc.RequireToken, "CHAT_REQUIRE_RPC_TOKEN", func(raw string) (*bool, error) {
		v, err := parseBool(raw)
		return &v, err
	})
	envOverride(&rpc.AllowNullOrigin, "CHAT_ALLOW_NULL_ORIGIN", parseBool)
	envOverride(&rpc.RateLimit.Enabled, "CHAT_RPC_RATE_LIMIT_ENABLED", parseBool)
	envOverride(&rpc.RateLimit.RPS, "CHAT_RPC_RATE_LIMIT_RPS", parsePositiveFloat)
	envOverride(&rpc.RateLimit.Burst, "CHAT_RPC_RATE_LIMIT_BURST", strconv.Atoi)
	envOverride(&rpc.Streams.MaxGlobal, "CHAT_RPC_STREAM_MAX_GLOBAL", strconv.Atoi)
	envOverride(&rpc.Streams.MaxPerClient, "CHAT_RPC_STREAM_MAX_PER_CLIENT", strconv.Atoi)

	// An empty prefix is meaningful, so presence rather than value counts.
	if v, ok := os.LookupEnv("CHAT_EVENT_PREFIX"); ok {
		cfg.Events.Prefix = strings.TrimSpace(v)
	}
	envOverride(&cfg.Events.Backlog, "CHAT_EVENT_BACKLOG", strconv.Atoi)

	envOverride(&cfg.Session.AutoInitialize, "CHAT_AUTO_INITIALIZE", parseBool)
	envOverride(&cfg.Session.AutoStart, "CHAT_AUTO_START", parseBool)
	envOverride(&cfg.Session.SubscribePush, "CHAT_SUBSCRIBE_PUSH", parseBool)

	envOverride(&cfg.Diagnostics.StaleAfter, "CHAT_STALE_AFTER", parsePositiveDuration)
	envOverride(&cfg.Diagnostics.StaleInterval, "CHAT_STALE_INTERVAL", parsePositiveDuration)

	if raw := envString("CHAT_ENGINE_CONFIG"); raw != "" {
		var engineCfg map[string]any
		if err := json.Unmarshal([]byte(raw), &engineCfg); err != nil {
			return fmt.Errorf("CHAT_ENGINE_CONFIG: %w", err)
		}
		cfg.Engine = engineCfg
	}
	if cfg.Engine == nil {
		cfg.Engine = map[string]any{}
	}
	for key, env := range map[string]string{
		"name":       "CHAT_ENGINE_NAME",
		"transport":  "CHAT_ENGINE_TRANSPORT",
		"mnemonic":   "CHAT_ENGINE_MNEMONIC",
		"dataDir":    "CHAT_ENGINE_DATA_DIR",
		"passphrase": "CHAT_ENGINE_PASSPHRASE",
	} {
		if v := envString(env); v != "" {
			cfg.Engine[key] = v
		}
	}
	if nodes := envCSV("CHAT_ENGINE_BOOTSTRAP_NODES"); nodes != nil {
		cfg.Engine["bootstrapNodes"] = nodes
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPC.Addr) == "" {
		errs = append(errs, errors.New("rpc.addr is required"))
	}
	if c.RPC.RateLimit.Enabled && (c.RPC.RateLimit.RPS <= 0 || c.RPC.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rpc.rateLimit needs positive rps and burst when enabled"))
	}
	if c.RPC.Streams.MaxGlobal <= 0 || c.RPC.Streams.MaxPerClient <= 0 {
		errs = append(errs, errors.New("rpc.streams limits must be positive"))
	}
	if c.Events.Backlog <= 0 {
		errs = append(errs, errors.New("events.backlog must be positive"))
	}
	if c.Diagnostics.StaleAfter < 0 || c.Diagnostics.StaleInterval < 0 {
		errs = append(errs, errors.New("diagnostics durations must not be negative"))
	}
	if c.Session.AutoStart && !c.Session.AutoInitialize {
		errs = append(errs, errors.New("session.autoStart requires session.autoInitialize"))
	}
	return errors.Join(errs...)
}

// RequiresRPCToken resolves whether RPC calls must carry the token.
// Production-like environments always require one.
func (c Config) RequiresRPCToken() bool {
	nonProd := IsNonProdEnv(c.Env)
	if c.RPC.RequireToken != nil {
		if !*c.RPC.RequireToken && !nonProd {
			return true
		}
		return *c.RPC.RequireToken
	}
	return !nonProd
}

// EngineConfigJSON renders the engine section as the opaque blob handed to
// the engine.
func (c Config) EngineConfigJSON() ([]byte, error) {
	engine := c.Engine
	if engine == nil {
		engine = map[string]any{}
	}
	data, err := json.Marshal(engine)
	if err != nil {
		return nil, fmt.Errorf("encode engine config: %w", err)
	}
	return data, nil
}
