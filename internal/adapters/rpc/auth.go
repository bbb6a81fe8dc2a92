package rpc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	tokenHeader  = "X-Chat-RPC-Token"
	bearerPrefix = "bearer "
	autoToken    = "auto"
)

var corsAllowHeaders = strings.Join([]string{
	"Content-Type", "Accept", "Authorization", "Last-Event-ID", tokenHeader,
}, ", ")

// applyCORS echoes allowed origins and rejects the rest with 403. Requests
// without an Origin header are not cross-origin and pass.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	h := w.Header()
	h.Set("Vary", "Origin")
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		if !isAllowedOrigin(origin, s.allowNullOrigin) {
			http.Error(w, "origin is not allowed", http.StatusForbidden)
			return false
		}
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	return true
}

func (s *Server) authorized(r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	presented := s.extractRPCToken(r)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.rpcToken)) == 1
}

// extractRPCToken reads the token header, falling back to a bearer
// Authorization header.
func (s *Server) extractRPCToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(tokenHeader)); token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}
	return ""
}

// isAllowedOrigin admits loopback origins only; "null" needs allowNull.
func isAllowedOrigin(raw string, allowNull bool) bool {
	if raw == "null" {
		return allowNull
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// resolveRPCToken turns the configured token into the effective one. "auto"
// generates a fresh token and writes it to tokenFile when one is set.
func resolveRPCToken(token, tokenFile string) (string, error) {
	token = strings.TrimSpace(token)
	if !strings.EqualFold(token, autoToken) {
		return token, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	token = "rpc_" + hex.EncodeToString(secret)
	if tokenFile = strings.TrimSpace(tokenFile); tokenFile == "" {
		return token, nil
	}
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		return "", err
	}
	return token, nil
}
