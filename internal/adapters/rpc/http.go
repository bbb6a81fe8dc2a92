package rpc

import (
	"encoding/json"
	"net/http"
)

// HandleHealth serves GET /healthz.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.guard(http.MethodGet, false, s.serveHealth)(w, r)
}

// HandleRPC serves POST /rpc.
func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	s.guard(http.MethodPost, true, s.serveRPC)(w, r)
}

// HandleRPCStream serves GET /rpc/stream.
func (s *Server) HandleRPCStream(w http.ResponseWriter, r *http.Request) {
	s.guard(http.MethodGet, true, s.serveStream)(w, r)
}

// guard applies the checks every route shares, in order: origin, preflight,
// token when authed is set, then the HTTP method.
func (s *Server) guard(method string, authed bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.applyCORS(w, r) {
			return
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if authed && !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Stage  string `json:"stage"`
	}{"ok", string(s.chat.Stage())})
}
