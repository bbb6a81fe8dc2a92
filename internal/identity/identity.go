package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatsdk/go-backend/pkg/models"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

const (
	identityIDPrefix   = "chat1"
	inboxIDPrefix      = "inbox_"
	introBundleVersion = 1
)

var (
	ErrInvalidIntroBundle = errors.New("invalid intro bundle")
	ErrIdentityMismatch   = errors.New("identity id does not match signing key")
	ErrBadSignature       = errors.New("intro bundle signature does not verify")
)

// Identity is a derived account: its ids and both key pairs.
type Identity struct {
	ID        string
	Name      string
	InboxID   string
	Keys      *DerivedKeys
	CreatedAt time.Time
}

func New(name string, keys *DerivedKeys, now time.Time) (*Identity, error) {
	if keys == nil || len(keys.SigningPublicKey) != ed25519.PublicKeySize || len(keys.EncryptionPublicKey) != curve25519.PointSize {
		return nil, ErrIdentityInit
	}
	id, err := BuildIdentityID(keys.SigningPublicKey)
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:        id,
		Name:      strings.TrimSpace(name),
		InboxID:   BuildInboxID(keys.EncryptionPublicKey),
		Keys:      keys,
		CreatedAt: now.UTC(),
	}, nil
}

func BuildIdentityID(signingPublicKey []byte) (string, error) {
	if len(signingPublicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid signing public key size: %d", len(signingPublicKey))
	}
	h := blake2b.Sum256(signingPublicKey)
	return identityIDPrefix + base58.Encode(h[:]), nil
}

func BuildInboxID(encryptionPublicKey []byte) string {
	return inboxIDPrefix + base58.Encode(encryptionPublicKey)
}

func (id *Identity) Model() models.Identity {
	return models.Identity{
		ID:                  id.ID,
		Name:                id.Name,
		InboxID:             id.InboxID,
		SigningPublicKey:    base58.Encode(id.Keys.SigningPublicKey),
		EncryptionPublicKey: base58.Encode(id.Keys.EncryptionPublicKey),
		CreatedAt:           id.CreatedAt,
	}
}

// IntroBundle returns a freshly signed bundle for this identity.
func (id *Identity) IntroBundle(now time.Time) models.IntroBundle {
	bundle := models.IntroBundle{
		Version:       introBundleVersion,
		IdentityID:    id.ID,
		Name:          id.Name,
		InboxID:       id.InboxID,
		SigningKey:    base58.Encode(id.Keys.SigningPublicKey),
		EncryptionKey: base58.Encode(id.Keys.EncryptionPublicKey),
		IssuedAt:      now.UTC().Truncate(time.Second),
	}
	bundle.Signature = base58.Encode(ed25519.Sign(id.Keys.SigningPrivateKey, introBundleSigningBytes(bundle)))
	return bundle
}

// ParseIntroBundle decodes and verifies a bundle as produced by IntroBundle.
func ParseIntroBundle(raw string) (models.IntroBundle, error) {
	var bundle models.IntroBundle
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &bundle); err != nil {
		return models.IntroBundle{}, fmt.Errorf("%w: %v", ErrInvalidIntroBundle, err)
	}
	if err := VerifyIntroBundle(bundle); err != nil {
		return models.IntroBundle{}, err
	}
	return bundle, nil
}

func VerifyIntroBundle(bundle models.IntroBundle) error {
	if bundle.Version != introBundleVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidIntroBundle, bundle.Version)
	}
	signingKey, err := base58.Decode(bundle.SigningKey)
	if err != nil || len(signingKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: signing key", ErrInvalidIntroBundle)
	}
	encryptionKey, err := base58.Decode(bundle.EncryptionKey)
	if err != nil || len(encryptionKey) != curve25519.PointSize {
		return fmt.Errorf("%w: encryption key", ErrInvalidIntroBundle)
	}
	signature, err := base58.Decode(bundle.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature", ErrInvalidIntroBundle)
	}
	expectedID, err := BuildIdentityID(signingKey)
	if err != nil {
		return err
	}
	if expectedID != bundle.IdentityID {
		return ErrIdentityMismatch
	}
	if BuildInboxID(encryptionKey) != bundle.InboxID {
		return fmt.Errorf("%w: inbox id", ErrInvalidIntroBundle)
	}
	if !ed25519.Verify(signingKey, introBundleSigningBytes(bundle), signature) {
		return ErrBadSignature
	}
	return nil
}

// EncryptionKeyOf returns the raw X25519 key carried in a verified bundle.
func EncryptionKeyOf(bundle models.IntroBundle) ([]byte, error) {
	key, err := base58.Decode(bundle.EncryptionKey)
	if err != nil || len(key) != curve25519.PointSize {
		return nil, fmt.Errorf("%w: encryption key", ErrInvalidIntroBundle)
	}
	return key, nil
}

func introBundleSigningBytes(b models.IntroBundle) []byte {
	fields := []string{
		"chatsdk-intro-v1",
		b.IdentityID,
		b.Name,
		b.InboxID,
		b.SigningKey,
		b.EncryptionKey,
		b.IssuedAt.UTC().Format(time.RFC3339),
	}
	out := make([]byte, 0, 256)
	for i, f := range fields {
		if i > 0 {
			out = append(out, 0)
		}
		out = append(out, f...)
	}
	return out
}
