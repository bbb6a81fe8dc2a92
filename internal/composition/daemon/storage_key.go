package daemon

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"chatsdk/go-backend/internal/config"
)

const (
	storagePassphraseEnv = "CHAT_STORAGE_PASSPHRASE"
	storageKeyWrappedEnv = "CHAT_STORAGE_KEY_WRAPPED"
	storageKeyFile       = "storage.key"
)

var ErrInsecureStorageKeyMode = errors.New("insecure storage key mode is forbidden in production")

// ResolveEnginePassphrase fills engine.passphrase when the engine persists to a
// data directory and no passphrase was configured. The secret comes from
// CHAT_STORAGE_PASSPHRASE, then from dataDir/storage.key, which is generated on
// first use outside production.
func ResolveEnginePassphrase(cfg *config.Config) error {
	if cfg.Engine == nil {
		return nil
	}
	dataDir, _ := cfg.Engine["dataDir"].(string)
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil
	}
	if existing, _ := cfg.Engine["passphrase"].(string); strings.TrimSpace(existing) != "" {
		return nil
	}
	secret, err := StoragePassphrase(cfg.Env, dataDir)
	if err != nil {
		return err
	}
	cfg.Engine["passphrase"] = secret
	return nil
}

func StoragePassphrase(env, dataDir string) (string, error) {
	if secret := strings.TrimSpace(os.Getenv(storagePassphraseEnv)); secret != "" {
		return secret, nil
	}
	existing, err := os.ReadFile(filepath.Join(dataDir, storageKeyFile))
	if err == nil {
		if secret := strings.TrimSpace(string(existing)); secret != "" {
			if policyErr := enforceStorageKeyPolicy(env, "file"); policyErr != nil {
				return "", policyErr
			}
			return secret, nil
		}
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if policyErr := enforceStorageKeyPolicy(env, "auto-generate"); policyErr != nil {
		return "", policyErr
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := base64.RawStdEncoding.EncodeToString(buf)
	if err := WriteStorageKey(env, dataDir, secret); err != nil {
		return "", err
	}
	return secret, nil
}

func WriteStorageKey(env, dataDir, secret string) error {
	if policyErr := enforceStorageKeyPolicy(env, "write-file"); policyErr != nil {
		return policyErr
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, storageKeyFile), []byte(secret), 0o600)
}

func enforceStorageKeyPolicy(env, source string) error {
	if !isProductionEnv(env) {
		return nil
	}
	if source == "auto-generate" {
		return fmt.Errorf(
			"%w: production requires %s or engine.passphrase; raw storage.key generation is disabled",
			ErrInsecureStorageKeyMode,
			storagePassphraseEnv,
		)
	}
	if wrapped, _ := parseBoolEnv(storageKeyWrappedEnv); wrapped {
		return nil
	}
	return fmt.Errorf(
		"%w: raw storage.key is forbidden in production; set %s or mark the key file as wrapped (%s=true)",
		ErrInsecureStorageKeyMode,
		storagePassphraseEnv,
		storageKeyWrappedEnv,
	)
}

func isProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

func parseBoolEnv(name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
