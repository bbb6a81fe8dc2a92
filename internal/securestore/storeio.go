package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// ReadJSON loads a snapshot written by WriteJSON into v. A missing file leaves
// v untouched and reports found=false. With an empty secret the file is read
// as plain JSON.
func ReadJSON(path, secret string, v any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if secret != "" {
		raw, err = Decrypt(secret, raw)
		if err != nil {
			return false, err
		}
	} else if IsEncrypted(raw) {
		return false, ErrAuthFailed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// WriteJSON marshals v, encrypts it when secret is set, and replaces path
// through a temp file rename.
func WriteJSON(path, secret string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if secret != "" {
		payload, err = Encrypt(secret, payload)
		if err != nil {
			return err
		}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
