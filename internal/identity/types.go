package identity

import "crypto/ed25519"

type DerivedKeys struct {
	SigningPrivateKey    ed25519.PrivateKey
	SigningPublicKey     ed25519.PublicKey
	EncryptionPrivateKey []byte // X25519 scalar (32)
	EncryptionPublicKey  []byte // X25519 point (32)
}
