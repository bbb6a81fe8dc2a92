package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errInvalidParams = errors.New("invalid params")

func isEmptyParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}

func decodeNoParams(raw json.RawMessage) error {
	if isEmptyParams(raw) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) == 0 {
		return nil
	}
	return errInvalidParams
}

// decodeStringParams accepts ["a", "b"] or {"name": "a", ...} keyed by names,
// and requires every value to be a non-empty string.
func decodeStringParams(raw json.RawMessage, names ...string) ([]string, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != len(names) {
			return nil, errInvalidParams
		}
		for _, v := range arr {
			if v == "" {
				return nil, errInvalidParams
			}
		}
		return arr, nil
	}
	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errInvalidParams
	}
	out := make([]string, len(names))
	for i, name := range names {
		v := obj[name]
		if v == "" {
			return nil, errInvalidParams
		}
		out[i] = v
	}
	return out, nil
}

// decodeInitParams returns the engine config carried by initChat. It may be
// given as [config], [configString], {"config": ...} or nothing at all, in
// which case fallback is used.
func decodeInitParams(raw json.RawMessage, fallback []byte) ([]byte, error) {
	if isEmptyParams(raw) {
		if len(fallback) == 0 {
			return nil, errInvalidParams
		}
		return fallback, nil
	}

	var value json.RawMessage
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 1 {
			return nil, errInvalidParams
		}
		value = arr[0]
	} else {
		var wrapper struct {
			Config json.RawMessage `json:"config"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.Config) == 0 {
			return nil, errInvalidParams
		}
		value = wrapper.Config
	}

	var asString string
	if err := json.Unmarshal(value, &asString); err == nil {
		if asString == "" {
			return nil, errInvalidParams
		}
		return []byte(asString), nil
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(value, &asObject); err != nil {
		return nil, errInvalidParams
	}
	return bytes.TrimSpace(value), nil
}
