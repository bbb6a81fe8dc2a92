// Package securestore seals small secrets and state snapshots under a
// passphrase: argon2id stretches the passphrase, XChaCha20-Poly1305 seals
// the payload, and the parameters travel with the ciphertext.
package securestore

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "CHATENC1\n"
	kdfName         = "argon2id"
)

// floor is both what Seal writes and the weakest cost Open accepts.
var floor = kdfParams{time: 2, memoryKB: 64 * 1024, threads: 1}

var (
	ErrAuthFailed = errors.New("securestore authentication failed")
	ErrInvalid    = errors.New("securestore envelope is invalid")
	ErrPlaintext  = errors.New("securestore data is not encrypted")
)

type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

type kdfParams struct {
	time     uint32
	memoryKB uint32
	threads  uint8
}

func (p kdfParams) weakerThan(o kdfParams) bool {
	return p.time < o.time || p.memoryKB < o.memoryKB || p.threads < o.threads
}

func (e *Envelope) params() kdfParams {
	return kdfParams{time: e.KDFTime, memoryKB: e.KDFMemoryKB, threads: e.KDFThreads}
}

// aead derives the envelope key from passphrase and wipes it once the cipher
// holds its own copy.
func (e *Envelope) aead(passphrase string) (cipher.AEAD, error) {
	p := e.params()
	key := argon2.IDKey([]byte(passphrase), e.Salt, p.time, p.memoryKB, p.threads, chacha20poly1305.KeySize)
	defer clear(key)
	return chacha20poly1305.NewX(key)
}

// IsEncrypted reports whether data carries the envelope prefix.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(filePrefix))
}

// Encrypt seals plaintext into the prefixed on-disk form.
func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	env, err := EncryptEnvelope(passphrase, plaintext)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func EncryptEnvelope(passphrase string, plaintext []byte) (*Envelope, error) {
	env := &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     floor.time,
		KDFMemoryKB: floor.memoryKB,
		KDFThreads:  floor.threads,
		Salt:        make([]byte, saltSize),
		Nonce:       make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	aead, err := env.aead(passphrase)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, nil)
	return env, nil
}

// Decrypt opens data written by Encrypt.
func Decrypt(passphrase string, data []byte) ([]byte, error) {
	raw, ok := bytes.CutPrefix(data, []byte(filePrefix))
	if !ok {
		return nil, ErrPlaintext
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalid
	}
	return DecryptEnvelope(passphrase, &env)
}

// DecryptEnvelope rejects envelopes of another version or kdf, and any whose
// cost parameters fall below the ones this package writes.
func DecryptEnvelope(passphrase string, env *Envelope) ([]byte, error) {
	switch {
	case env == nil,
		env.Version != envelopeVersion,
		env.KDF != kdfName,
		env.params().weakerThan(floor),
		len(env.Salt) != saltSize,
		len(env.Nonce) != chacha20poly1305.NonceSizeX:
		return nil, ErrInvalid
	}
	aead, err := env.aead(passphrase)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
