package loopback

import (
	"errors"
	"path/filepath"
	"testing"

	"chatsdk/go-backend/internal/waku"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"name":" alice ","transport":"mock","port":60001,"dataDir":"/tmp/alice"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "alice" || cfg.Port != 60001 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.seedPath() != filepath.Join("/tmp/alice", seedFileName) || cfg.statePath() != filepath.Join("/tmp/alice", stateFileName) {
		t.Fatalf("unexpected paths: %s %s", cfg.seedPath(), cfg.statePath())
	}
	wc := cfg.wakuConfig()
	if wc.Transport != waku.TransportMock || wc.Port != 60001 {
		t.Fatalf("unexpected waku config: %+v", wc)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.seedPath() != "" || cfg.statePath() != "" {
		t.Fatalf("expected in-memory session without data dir")
	}
	if cfg.wakuConfig().Transport != waku.DefaultConfig().Transport {
		t.Fatalf("expected default transport")
	}
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"syntax":        `{"name":`,
		"unknown field": `{"nickname":"alice"}`,
		"wrong type":    `{"port":"60000"}`,
		"trailing":      `{"name":"a"} {"name":"b"}`,
		"transport":     `{"transport":"carrier-pigeon"}`,
	}
	for name, raw := range cases {
		if _, err := ParseConfig([]byte(raw)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}
