package chatsdk

import (
	"sort"
	"sync"
	"time"

	"chatsdk/go-backend/internal/engine"

	"github.com/google/uuid"
)

// Token identifies one registration in a Correlator.
type Token uuid.UUID

func (t Token) String() string {
	return uuid.UUID(t).String()
}

// PendingRequest is the bookkeeping record of one accepted engine call.
type PendingRequest struct {
	Token      Token
	Kind       engine.Kind
	Context    any
	CreatedAt  time.Time
	Persistent bool

	seq uint64
}

// Correlator binds each outstanding engine call to the caller context needed
// to route its completion. It is safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[Token]PendingRequest
	seq     uint64
	now     func() time.Time
}

func NewCorrelator() *Correlator {
	return newCorrelatorWithClock(time.Now)
}

func newCorrelatorWithClock(now func() time.Time) *Correlator {
	return &Correlator{
		pending: make(map[Token]PendingRequest),
		now:     now,
	}
}

// Register stores a one-shot PendingRequest and returns its token.
func (c *Correlator) Register(kind engine.Kind, context any) Token {
	return c.register(kind, context, false)
}

// RegisterPersistent stores a registration that Resolve never removes.
func (c *Correlator) RegisterPersistent(kind engine.Kind, context any) Token {
	return c.register(kind, context, true)
}

func (c *Correlator) register(kind engine.Kind, context any, persistent bool) Token {
	token := Token(uuid.New())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.pending[token] = PendingRequest{
		Token:      token,
		Kind:       kind,
		Context:    context,
		CreatedAt:  c.now(),
		Persistent: persistent,
		seq:        c.seq,
	}
	return token
}

// Resolve returns the registration for token. One-shot registrations are
// removed, so a second Resolve for the same token fails with ErrUnknownToken.
func (c *Correlator) Resolve(token Token) (PendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[token]
	if !ok {
		return PendingRequest{}, ErrUnknownToken
	}
	if !req.Persistent {
		delete(c.pending, token)
	}
	return req, nil
}

// Discard drops a one-shot registration whose call the engine refused.
func (c *Correlator) Discard(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := c.pending[token]; ok && !req.Persistent {
		delete(c.pending, token)
	}
}

// Release drops a persistent registration. One-shot registrations are left
// alone: an outstanding request keeps its record even after the session ends.
func (c *Correlator) Release(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := c.pending[token]; ok && req.Persistent {
		delete(c.pending, token)
	}
}

// Len reports the number of one-shot registrations still outstanding.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.pending {
		if !req.Persistent {
			n++
		}
	}
	return n
}

// Outstanding returns the one-shot registrations in registration order.
func (c *Correlator) Outstanding() []PendingRequest {
	c.mu.Lock()
	out := make([]PendingRequest, 0, len(c.pending))
	for _, req := range c.pending {
		if req.Persistent {
			continue
		}
		out = append(out, req)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}
