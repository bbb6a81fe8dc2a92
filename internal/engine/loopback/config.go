package loopback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"chatsdk/go-backend/internal/engine"
	"chatsdk/go-backend/internal/waku"
)

var ErrInvalidConfig = engine.ErrInvalidConfig

const (
	seedFileName  = "seed.json"
	stateFileName = "conversations.json"
)

// Config is the engine section handed to Create as JSON.
type Config struct {
	Name           string   `json:"name"`
	Transport      string   `json:"transport"`
	Port           int      `json:"port"`
	BootstrapNodes []string `json:"bootstrapNodes"`
	Mnemonic       string   `json:"mnemonic"`
	DataDir        string   `json:"dataDir"`
	Passphrase     string   `json:"passphrase"`
}

// ParseConfig decodes raw strictly: unknown fields and trailing data are
// errors.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if dec.More() {
		return Config{}, fmt.Errorf("%w: trailing data", ErrInvalidConfig)
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if err := waku.ValidateConfig(cfg.wakuConfig()); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c Config) wakuConfig() waku.Config {
	out := waku.DefaultConfig()
	if c.Transport != "" {
		out.Transport = c.Transport
	}
	if c.Port != 0 {
		out.Port = c.Port
	}
	out.BootstrapNodes = append([]string(nil), c.BootstrapNodes...)
	return out
}

func (c Config) seedPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, seedFileName)
}

func (c Config) statePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, stateFileName)
}
