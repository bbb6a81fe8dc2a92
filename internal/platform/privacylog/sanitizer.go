// Package privacylog keeps secrets and raw chat identifiers out of logs.
// Secret-looking keys are redacted; identifiers that link a line to a person
// or conversation are replaced by a per-process fingerprint under a "_fp" key.
package privacylog

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const redactedValue = "[REDACTED]"

var (
	processSalt = newSalt()

	secretFragments = []string{
		"token", "secret", "password", "passphrase", "authorization",
		"mnemonic", "seed", "private_key", "content",
	}
	identifierKeys = []string{
		"conversation_id", "convo_id", "message_id", "identity_id",
		"inbox_id", "peer_id", "recipient", "sender",
	}
	// readableKeys would match a secret fragment but carry none.
	readableKeys = []string{"correlation_id"}
)

// New returns a JSON logger at level that sanitizes every attribute,
// including those bound with With and nested in groups.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: ReplaceAttr,
	}))
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook applying the
// redaction rules, for callers building their own handler.
func ReplaceAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(attr.Key))
	switch {
	case slices.Contains(readableKeys, key):
		return attr
	case slices.ContainsFunc(secretFragments, func(f string) bool { return strings.Contains(key, f) }):
		return slog.String(attr.Key, redactedValue)
	case slices.Contains(identifierKeys, key):
		return slog.String(attr.Key+"_fp", FingerprintID(plainValue(attr.Value)))
	}
	return attr
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	var level slog.Level
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "warning":
		return slog.LevelWarn
	case "debug", "info", "warn", "error":
		_ = level.UnmarshalText([]byte(s))
		return level
	}
	return slog.LevelInfo
}

// FingerprintID is a per-process stable digest of an identifier. Lines from
// one run can be joined; lines from different runs cannot.
func FingerprintID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	h := sha256.New()
	h.Write(processSalt)
	h.Write([]byte(value))
	return "fp_" + hex.EncodeToString(h.Sum(nil)[:8])
}

func plainValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindTime {
		return v.Time().UTC().Format(time.RFC3339Nano)
	}
	return v.String()
}

func newSalt() []byte {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return salt
}
