package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrMnemonicRequired = errors.New("mnemonic is required")
	ErrIdentityInit     = errors.New("identity initialization failed")
)

func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalizeMnemonic(mnemonic))
}

// KeysFromMnemonic derives the identity keys of a bip39 mnemonic.
func KeysFromMnemonic(mnemonic string) (*DerivedKeys, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if mnemonic == "" {
		return nil, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return DeriveKeys(bip39.NewSeed(mnemonic, ""))
}

// SeedSource describes where a session's mnemonic comes from.
type SeedSource struct {
	// Mnemonic, when set, is used as is and written to Path.
	Mnemonic string
	// Path is the encrypted seed file. Empty keeps the seed in memory only.
	Path       string
	Passphrase string
}

// ResolveSeed returns the mnemonic for src: the explicit one, the one stored
// at src.Path, or a freshly generated one that is then stored at src.Path.
func ResolveSeed(src SeedSource) (mnemonic string, created bool, err error) {
	if m := normalizeMnemonic(src.Mnemonic); m != "" {
		if !bip39.IsMnemonicValid(m) {
			return "", false, ErrInvalidMnemonic
		}
		if err := persistSeed(src, m); err != nil {
			return "", false, err
		}
		return m, false, nil
	}
	if src.Path != "" {
		stored, err := ReadSeedFile(src.Path, []byte(src.Passphrase))
		switch {
		case err == nil:
			stored = normalizeMnemonic(stored)
			if !bip39.IsMnemonicValid(stored) {
				return "", false, fmt.Errorf("%w: corrupted seed file", ErrInvalidMnemonic)
			}
			return stored, false, nil
		case !errors.Is(err, ErrSeedFileMissing):
			return "", false, err
		}
	}
	m, err := NewMnemonic()
	if err != nil {
		return "", false, err
	}
	if err := persistSeed(src, m); err != nil {
		return "", false, err
	}
	return m, true, nil
}

func persistSeed(src SeedSource, mnemonic string) error {
	if src.Path == "" {
		return nil
	}
	return WriteSeedFile(src.Path, mnemonic, []byte(src.Passphrase))
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}
