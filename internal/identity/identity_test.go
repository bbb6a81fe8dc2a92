package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/curve25519"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testIdentity(t *testing.T, mnemonic, name string) *Identity {
	t.Helper()
	keys, err := KeysFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	id, err := New(name, keys, testNow)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	return id
}

func TestDeriveKeysDeterministic(t *testing.T) {
	seed := []byte("test-seed-material")
	k1, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive keys 1 failed: %v", err)
	}
	k2, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive keys 2 failed: %v", err)
	}
	if !bytes.Equal(k1.SigningPublicKey, k2.SigningPublicKey) {
		t.Fatal("signing public keys should be deterministic")
	}
	if !bytes.Equal(k1.EncryptionPublicKey, k2.EncryptionPublicKey) {
		t.Fatal("encryption keys should be deterministic")
	}
	pub, err := curve25519.X25519(k1.EncryptionPrivateKey, curve25519.Basepoint)
	if err != nil || !bytes.Equal(pub, k1.EncryptionPublicKey) {
		t.Fatal("encryption public key must match its private scalar")
	}
	if _, err := DeriveKeys(nil); !errors.Is(err, ErrEmptySeed) {
		t.Fatalf("expected ErrEmptySeed, got %v", err)
	}
}

func TestIdentityIDs(t *testing.T) {
	a := testIdentity(t, testMnemonic, "alice")
	b := testIdentity(t, "  "+strings.ReplaceAll(testMnemonic, " ", "  ")+"\n", "alice")
	if a.ID != b.ID {
		t.Fatal("whitespace in the mnemonic must not change the identity")
	}
	if !strings.HasPrefix(a.ID, "chat1") {
		t.Fatalf("unexpected identity id %q", a.ID)
	}
	if a.InboxID != "inbox_"+base58.Encode(a.Keys.EncryptionPublicKey) {
		t.Fatalf("unexpected inbox id %q", a.InboxID)
	}
	model := a.Model()
	if model.ID != a.ID || model.InboxID != a.InboxID || model.Name != "alice" {
		t.Fatalf("unexpected model %+v", model)
	}
}

func TestIntroBundleRoundtrip(t *testing.T) {
	id := testIdentity(t, testMnemonic, "alice")
	bundle := id.IntroBundle(testNow)
	if err := VerifyIntroBundle(bundle); err != nil {
		t.Fatalf("verify: %v", err)
	}
	raw := `{"version":1,"identityId":"` + bundle.IdentityID + `","name":"alice","inboxId":"` + bundle.InboxID +
		`","signingKey":"` + bundle.SigningKey + `","encryptionKey":"` + bundle.EncryptionKey +
		`","issuedAt":"2026-03-01T12:00:00Z","signature":"` + bundle.Signature + `"}`
	parsed, err := ParseIntroBundle(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	key, err := EncryptionKeyOf(parsed)
	if err != nil || !bytes.Equal(key, id.Keys.EncryptionPublicKey) {
		t.Fatalf("unexpected encryption key: %v", err)
	}
}

func TestIntroBundleTamper(t *testing.T) {
	id := testIdentity(t, testMnemonic, "alice")
	other, err := NewMnemonic()
	if err != nil {
		t.Fatalf("mnemonic: %v", err)
	}
	mallory := testIdentity(t, other, "mallory")

	renamed := id.IntroBundle(testNow)
	renamed.Name = "bob"
	if err := VerifyIntroBundle(renamed); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	swapped := id.IntroBundle(testNow)
	swapped.SigningKey = base58.Encode(mallory.Keys.SigningPublicKey)
	if err := VerifyIntroBundle(swapped); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}

	rekeyed := id.IntroBundle(testNow)
	rekeyed.EncryptionKey = base58.Encode(mallory.Keys.EncryptionPublicKey)
	if err := VerifyIntroBundle(rekeyed); !errors.Is(err, ErrInvalidIntroBundle) {
		t.Fatalf("expected ErrInvalidIntroBundle, got %v", err)
	}

	if _, err := ParseIntroBundle("not-json"); !errors.Is(err, ErrInvalidIntroBundle) {
		t.Fatalf("expected ErrInvalidIntroBundle, got %v", err)
	}
}

func TestEncryptDecryptSeed(t *testing.T) {
	seed := []byte("mnemonic-bytes-placeholder")
	password := []byte("strong-password")

	env, err := EncryptSeed(seed, password)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	got, err := DecryptSeed(env, password)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(seed, got) {
		t.Fatal("decrypted seed mismatch")
	}
}
