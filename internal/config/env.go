package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var errNotPositive = errors.New("must be positive")

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// envOverride replaces *dst with the parsed value of key. Unset, blank or
// unparsable values leave *dst alone.
func envOverride[T any](dst *T, key string, parse func(string) (T, error)) {
	raw := envString(key)
	if raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func overrideString(dst *string, key string) {
	envOverride(dst, key, func(s string) (string, error) { return s, nil })
}

func envCSV(key string) []string {
	var out []string
	for part := range strings.SplitSeq(envString(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var errNotBool = errors.New("not a boolean")

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errNotBool
}

func parsePositiveFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil && v <= 0 {
		err = errNotPositive
	}
	return v, err
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	v, err := time.ParseDuration(raw)
	if err == nil && v <= 0 {
		err = errNotPositive
	}
	return v, err
}

// IsNonProdEnv reports whether env names a test or development deployment.
func IsNonProdEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "test", "testing", "dev", "development", "local":
		return true
	}
	return false
}
