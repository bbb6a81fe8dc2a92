package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatsdk/go-backend/internal/chatsdk"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutstandingSource is the part of the chat client the stale reporter reads.
type OutstandingSource interface {
	Outstanding() []chatsdk.PendingRequest
}

// StaleReporter periodically logs and gauges engine requests that have waited
// longer than a threshold. It never resolves or cancels them. Each request is
// warned about once; the gauges are refreshed on every report.
type StaleReporter struct {
	source   OutstandingSource
	after    time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stale  prometheus.Gauge
	oldest prometheus.Gauge

	mu     sync.Mutex
	warned map[chatsdk.Token]struct{}
}

func NewStaleReporter(source OutstandingSource, after, interval time.Duration, reg prometheus.Registerer, logger *slog.Logger) *StaleReporter {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &StaleReporter{
		source:   source,
		after:    after,
		interval: interval,
		logger:   logger.With("component", componentName),
		now:      time.Now,
		warned:   make(map[chatsdk.Token]struct{}),
		stale: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsdk",
			Name:      "stale_requests",
			Help:      "Outstanding engine requests older than the stale threshold.",
		}),
		oldest: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsdk",
			Name:      "oldest_outstanding_seconds",
			Help:      "Age of the oldest outstanding engine request.",
		}),
	}
}

// Run reports every interval until ctx is done. A zero threshold or interval
// disables reporting.
func (r *StaleReporter) Run(ctx context.Context) error {
	if r.after <= 0 || r.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report takes one snapshot and returns how many requests were stale.
func (r *StaleReporter) Report() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var (
		stale  int
		oldest time.Duration
	)
	outstanding := r.source.Outstanding()
	seen := make(map[chatsdk.Token]struct{}, len(outstanding))
	for _, req := range outstanding {
		seen[req.Token] = struct{}{}
		age := now.Sub(req.CreatedAt)
		if age > oldest {
			oldest = age
		}
		if age < r.after {
			continue
		}
		stale++
		if _, ok := r.warned[req.Token]; ok {
			continue
		}
		r.warned[req.Token] = struct{}{}
		r.logger.Warn("engine request still outstanding",
			"operation", string(req.Kind),
			"correlation_id", req.Token.String(),
			"age_ms", age.Milliseconds())
	}
	for token := range r.warned {
		if _, ok := seen[token]; !ok {
			delete(r.warned, token)
		}
	}
	r.stale.Set(float64(stale))
	r.oldest.Set(oldest.Seconds())
	return stale
}
