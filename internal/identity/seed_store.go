package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chatsdk/go-backend/internal/securestore"
)

var ErrSeedFileMissing = errors.New("seed file does not exist")

// EncryptedSeedEnvelope is the sealed form of a mnemonic.
type EncryptedSeedEnvelope = securestore.Envelope

func EncryptSeed(seed, password []byte) (*EncryptedSeedEnvelope, error) {
	return securestore.EncryptEnvelope(string(password), seed)
}

func DecryptSeed(env *EncryptedSeedEnvelope, password []byte) ([]byte, error) {
	return securestore.DecryptEnvelope(string(password), env)
}

// WriteSeedFile stores the mnemonic sealed under password at path, creating
// private parent directories as needed.
func WriteSeedFile(path, mnemonic string, password []byte) error {
	sealed, err := securestore.Encrypt(string(password), []byte(mnemonic))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

// ReadSeedFile returns the mnemonic at path. A wrong password is reported as
// ErrInvalidPassword, a file that is not a seed envelope as a decode error.
func ReadSeedFile(path string, password []byte) (string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrSeedFileMissing
	}
	if err != nil {
		return "", err
	}
	mnemonic, err := securestore.Decrypt(string(password), raw)
	switch {
	case errors.Is(err, securestore.ErrAuthFailed):
		return "", ErrInvalidPassword
	case err != nil:
		return "", fmt.Errorf("decode seed file: %w", err)
	}
	return string(mnemonic), nil
}
