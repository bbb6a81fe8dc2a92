package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chatsdk/go-backend/internal/notify"
)

var errBadCursor = errors.New("invalid cursor")

// streamCursor is the last sequence the caller saw, from ?cursor= or the
// Last-Event-ID header of a reconnecting EventSource.
func streamCursor(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errBadCursor
	}
	return v, nil
}

// sseWriter frames notifications as JSON-RPC notifications on an event
// stream, one event per message with the hub sequence as its id.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

type streamParams struct {
	Seq       int64  `json:"seq"`
	Timestamp string `json:"timestamp"`
	Fields    []any  `json:"fields"`
	Data      any    `json:"data"`
}

type streamFrame struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  streamParams `json:"params"`
}

func (sw sseWriter) event(n notify.Notification) error {
	data, err := json.Marshal(streamFrame{
		JSONRPC: "2.0",
		Method:  n.Method,
		Params: streamParams{
			Seq:       n.Seq,
			Timestamp: n.Event.Time(),
			Fields:    n.Event.Fields(),
			Data:      n.Event,
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(sw.w, "id: %d\ndata: %s\n\n", n.Seq, data)
	return err
}

func (sw sseWriter) keepalive() {
	_, _ = fmt.Fprint(sw.w, ": keepalive\n\n")
	sw.flusher.Flush()
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	cursor, err := streamCursor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	release, ok := s.streams.acquire(clientKey(r, s.extractRPCToken(r)))
	if !ok {
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := sseWriter{w: w, flusher: flusher}
	backlog, live, cancel := s.events.Subscribe(cursor)
	defer cancel()
	for _, n := range backlog {
		if out.event(n) != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			out.keepalive()
		case n, open := <-live:
			if !open || out.event(n) != nil {
				return
			}
			flusher.Flush()
		}
	}
}
