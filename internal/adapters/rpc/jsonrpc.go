package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	jsonRPCVersion        = "2.0"
	maxRPCBodyBytes int64 = 1 << 20
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// readRPCRequest decodes exactly one request object from body. A body over
// the size cap yields errBodyTooLarge; anything else malformed yields an
// rpcError carrying whatever id could be read.
func readRPCRequest(body io.Reader) (rpcRequest, *rpcError, error) {
	var req rpcRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if maxErr := (*http.MaxBytesError)(nil); errors.As(err, &maxErr) {
			return req, nil, errBodyTooLarge
		}
		return req, rpcParseError(), nil
	}
	if dec.Decode(&struct{}{}) != io.EOF || req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return req, rpcInvalidRequest(), nil
	}
	return req, nil, nil
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if !s.rpcLimiter.Allow(clientKey(r, s.extractRPCToken(r)), time.Now()) {
		w.Header().Set("Retry-After", "1")
		writeRPCStatus(w, http.StatusTooManyRequests, rpcResponse{JSONRPC: jsonRPCVersion, Error: rpcRateLimited()})
		return
	}

	req, rpcErr, err := readRPCRequest(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if rpcErr != nil {
		writeRPCStatus(w, http.StatusOK, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}

	log := s.logger.With("operation", req.Method, "correlation_id", "rpc_"+uuid.NewString())
	started := time.Now()
	log.Debug("rpc request")
	result, rpcErr := s.dispatchRPC(req.Method, req.Params)
	latency := time.Since(started).Milliseconds()
	if rpcErr != nil {
		log.Warn("rpc failed", "rpc_code", rpcErr.Code, "latency_ms", latency)
	} else {
		log.Debug("rpc response", "latency_ms", latency)
	}
	writeRPCStatus(w, http.StatusOK, rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "chat_status":
		return s.status(), nil
	}
	for _, dispatch := range []func(string, json.RawMessage) (any, *rpcError, bool){
		s.dispatchLifecycleRPC,
		s.dispatchChatRPC,
	} {
		if result, rpcErr, ok := dispatch(method, rawParams); ok {
			return result, rpcErr
		}
	}
	return nil, rpcMethodNotFound()
}

func writeRPCStatus(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
