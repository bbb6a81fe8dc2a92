package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfoSigning    = "chatsdk/identity/signing/v1"
	hkdfInfoEncryption = "chatsdk/identity/encryption/v1"
)

var ErrEmptySeed = errors.New("seed material is empty")

// DeriveKeys expands seed material into the signing and encryption key pairs.
// The same seed always yields the same keys.
func DeriveKeys(seedBytes []byte) (*DerivedKeys, error) {
	if len(seedBytes) == 0 {
		return nil, ErrEmptySeed
	}
	signingSeed, err := hkdfExpand(seedBytes, hkdfInfoSigning, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	encryptionScalar, err := hkdfExpand(seedBytes, hkdfInfoEncryption, curve25519.ScalarSize)
	if err != nil {
		return nil, err
	}
	encryptionPub, err := curve25519.X25519(encryptionScalar, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	signingPriv := ed25519.NewKeyFromSeed(signingSeed)
	clear(signingSeed)

	return &DerivedKeys{
		SigningPrivateKey:    signingPriv,
		SigningPublicKey:     signingPriv.Public().(ed25519.PublicKey),
		EncryptionPrivateKey: encryptionScalar,
		EncryptionPublicKey:  encryptionPub,
	}, nil
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
