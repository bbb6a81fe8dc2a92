package rpc

import (
	"encoding/json"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
)

// acceptance is the immediate verdict of a chat call. The outcome arrives on
// the event stream.
type acceptance struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func verdict(err error) acceptance {
	if err == nil {
		return acceptance{Accepted: true}
	}
	return acceptance{Reason: chatsdk.Reason(err), Message: err.Error()}
}

func callWithoutParams(rawParams json.RawMessage, call func() error) (any, *rpcError) {
	if err := decodeNoParams(rawParams); err != nil {
		return nil, rpcInvalidParams()
	}
	return verdict(call()), nil
}

func callWithStringParams(rawParams json.RawMessage, names []string, call func(args []string) error) (any, *rpcError) {
	args, err := decodeStringParams(rawParams, names...)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	return verdict(call(args)), nil
}

type pendingView struct {
	Token     string    `json:"token"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	AgeMillis int64     `json:"ageMs"`
}

type statusView struct {
	Stage         string        `json:"stage"`
	Outstanding   []pendingView `json:"outstanding"`
	Backlog       int           `json:"backlog"`
	Subscribers   int           `json:"subscribers"`
	ActiveStreams int           `json:"activeStreams"`
}

func (s *Server) status() statusView {
	now := time.Now()
	pending := s.chat.Outstanding()
	out := make([]pendingView, 0, len(pending))
	for _, p := range pending {
		out = append(out, pendingView{
			Token:     p.Token.String(),
			Kind:      string(p.Kind),
			CreatedAt: p.CreatedAt.UTC(),
			AgeMillis: now.Sub(p.CreatedAt).Milliseconds(),
		})
	}
	return statusView{
		Stage:         string(s.chat.Stage()),
		Outstanding:   out,
		Backlog:       s.events.BacklogSize(),
		Subscribers:   s.events.Subscribers(),
		ActiveStreams: s.streams.active(),
	}
}
