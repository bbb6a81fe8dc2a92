package privacylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	return payload
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Info("test",
		"mnemonic", "abandon abandon",
		"rpc_token", "t0k3n",
		"content_hex", "48656c6c6f",
		"correlation_id", "abc",
		"identity_id", "chat1xyz",
		"kind", "private",
	)

	payload := decodeLine(t, &buf)
	for _, key := range []string{"mnemonic", "rpc_token", "content_hex"} {
		if got, _ := payload[key].(string); got != redactedValue {
			t.Fatalf("expected %s redacted, got %q", key, got)
		}
	}
	if payload["correlation_id"] != "abc" || payload["kind"] != "private" {
		t.Fatalf("plain keys must stay readable, got %v", payload)
	}
	if _, ok := payload["identity_id"]; ok {
		t.Fatal("identity_id should not be present")
	}
	if got, _ := payload["identity_id_fp"].(string); got != FingerprintID("chat1xyz") {
		t.Fatalf("unexpected identity fingerprint %q", got)
	}
	if strings.Contains(buf.String(), "chat1xyz") || strings.Contains(buf.String(), "t0k3n") {
		t.Fatalf("raw values leaked: %s", buf.String())
	}
}

func TestLoggerSanitizesGroupsAndWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug).With("passphrase", "hunter2")
	logger.Debug("grouped", slog.Group("request", slog.String("peer_id", "p1"), slog.Int("attempt", 2)))

	payload := decodeLine(t, &buf)
	if got := payload["passphrase"]; got != redactedValue {
		t.Fatalf("expected redacted passphrase from With, got %v", got)
	}
	group, ok := payload["request"].(map[string]any)
	if !ok {
		t.Fatalf("expected request group, got %v", payload["request"])
	}
	if group["peer_id_fp"] != FingerprintID("p1") {
		t.Fatalf("expected fingerprinted peer id in group, got %v", group)
	}
	if got := group["attempt"]; got != float64(2) {
		t.Fatalf("expected attempt=2, got %v", got)
	}
}

func TestReplaceAttrInCustomHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: ReplaceAttr}))
	logger.Info("msg", "inbox_id", "inbox_1")
	if !strings.Contains(buf.String(), "inbox_id_fp=fp_") || strings.Contains(buf.String(), "inbox_1") {
		t.Fatalf("expected sanitized inbox_id, got %s", buf.String())
	}
}

func TestFingerprintID(t *testing.T) {
	if FingerprintID("  ") != "" {
		t.Fatal("blank identifiers have no fingerprint")
	}
	a, b := FingerprintID("x"), FingerprintID(" x ")
	if a != b || !strings.HasPrefix(a, "fp_") || len(a) != len("fp_")+16 {
		t.Fatalf("unexpected fingerprints %q %q", a, b)
	}
	if FingerprintID("y") == a {
		t.Fatal("distinct identifiers must not collide")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("%q: expected %v, got %v", raw, want, got)
		}
	}
}
