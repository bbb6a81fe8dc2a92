package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidPeerKey  = errors.New("invalid peer key")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrReplayDetected  = errors.New("replay detected")
	ErrDecryptFailed   = errors.New("envelope authentication failed")
)

const (
	envelopeVersion   = 1
	maxSeenMessageIDs = 4096
)

// ConversationID names the private conversation between two identities. Both
// sides compute the same id.
func ConversationID(localID, peerID string) string {
	idA, idB := normalizeIDs(localID, peerID)
	h := sha256.Sum256([]byte("chatsdk/conversation/id/v1|" + idA + ":" + idB))
	return "conv_" + hex.EncodeToString(h[:16])
}

// ConversationKey derives the symmetric key of the conversation between the
// local identity and a peer from an X25519 exchange.
func ConversationKey(localPrivate, peerPublic []byte, localID, peerID string) ([]byte, error) {
	if len(localPrivate) != curve25519.ScalarSize {
		return nil, errors.New("invalid local key")
	}
	if len(peerPublic) != curve25519.PointSize {
		return nil, ErrInvalidPeerKey
	}
	shared, err := curve25519.X25519(localPrivate, peerPublic)
	if err != nil {
		return nil, ErrInvalidPeerKey
	}
	defer clear(shared)
	idA, idB := normalizeIDs(localID, peerID)
	return kdf32(shared, []byte(idA+":"+idB), []byte("chatsdk/conversation/key/v1")), nil
}

type Envelope struct {
	Version        uint8     `json:"version"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Nonce          []byte    `json:"nonce"`
	Ciphertext     []byte    `json:"ciphertext"`
	SentAt         time.Time `json:"sent_at"`
}

func Seal(key []byte, conversationID, messageID string, plaintext []byte, sentAt time.Time) (Envelope, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		Version:        envelopeVersion,
		ConversationID: conversationID,
		MessageID:      messageID,
		Nonce:          nonce,
		SentAt:         sentAt.UTC(),
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, envelopeAAD(env))
	return env, nil
}

func Open(key []byte, env Envelope) ([]byte, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, envelopeAAD(env))
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func ValidateEnvelope(env Envelope) error {
	if env.Version != envelopeVersion {
		return ErrInvalidEnvelope
	}
	if env.ConversationID == "" || env.MessageID == "" {
		return ErrInvalidEnvelope
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Ciphertext) < chacha20poly1305.Overhead {
		return ErrInvalidEnvelope
	}
	return nil
}

// ReplayGuard remembers recently opened message ids per conversation.
type ReplayGuard struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	max   int
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: make(map[string]struct{}), max: maxSeenMessageIDs}
}

// Seen records the id and reports whether it was already recorded.
func (g *ReplayGuard) Seen(conversationID, messageID string) bool {
	key := conversationID + ":" + messageID
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return true
	}
	g.seen[key] = struct{}{}
	g.order = append(g.order, key)
	if len(g.order) > g.max {
		evict := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, evict)
	}
	return false
}

func envelopeAAD(env Envelope) []byte {
	b := make([]byte, 0, len(env.ConversationID)+len(env.MessageID)+3)
	b = append(b, env.Version)
	b = append(b, 0)
	b = append(b, env.ConversationID...)
	b = append(b, 0)
	b = append(b, env.MessageID...)
	return b
}

func kdf32(input, salt, info []byte) []byte {
	reader := hkdf.New(sha256.New, input, salt, info)
	out := make([]byte, 32)
	_, _ = io.ReadFull(reader, out)
	return out
}

func normalizeIDs(a, b string) (string, string) {
	if strings.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}
