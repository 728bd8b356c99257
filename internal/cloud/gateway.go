// Package cloud is the authenticated remote tier: five entity collections
// and an image bucket over Postgres, wrapped in a request pipeline with a
// concurrency cap, exponential-backoff retries, and rolling statistics.
package cloud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

// Request pipeline tuning.
const (
	maxConcurrent  = 5
	maxRetries     = 3
	backoffBase    = 1000 * time.Millisecond
	backoffFactor  = 2
	backoffCap     = 10 * time.Second
	probeCacheTTL  = 5 * time.Minute
	signedURLTTL   = time.Hour
	degradedSample = 10 // min requests before the success-rate check kicks in
)

// Health statuses.
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Stats is the rolling request statistics snapshot.
type Stats struct {
	RequestCount  int           `json:"requestCount"`
	SuccessCount  int           `json:"successCount"`
	ErrorCount    int           `json:"errorCount"`
	MeanLatency   time.Duration `json:"meanLatency"`
	InFlight      int           `json:"inFlight"`
	QueuedPeak    int           `json:"queuedPeak"`
	RetriesIssued int           `json:"retriesIssued"`
}

// Health is the gateway health report.
type Health struct {
	Status string   `json:"status"`
	Issues []string `json:"issues,omitempty"`
	Stats  Stats    `json:"stats"`
}

// Gateway mediates every remote call.
type Gateway struct {
	db        *gorm.DB
	log       *zap.Logger
	jwtSecret []byte

	sem chan struct{}

	mu            sync.Mutex
	stats         Stats
	totalLatency  time.Duration
	authenticated bool
	queued        int

	probeMu     sync.Mutex
	probeAt     time.Time
	probeResult bool

	// sleep is swapped out by tests to keep the retry loop fast.
	sleep func(time.Duration)
}

// New builds a gateway over db. The JWT secret signs short-lived image URLs.
func New(db *gorm.DB, jwtSecret []byte, log *zap.Logger) *Gateway {
	return &Gateway{
		db:            db,
		log:           log.Named("cloud"),
		jwtSecret:     jwtSecret,
		sem:           make(chan struct{}, maxConcurrent),
		authenticated: true,
		sleep:         time.Sleep,
	}
}

// SetAuthenticated flips the auth flag. Signed-out gateways refuse work
// until sign-in flips it back.
func (g *Gateway) SetAuthenticated(ok bool) {
	g.mu.Lock()
	g.authenticated = ok
	g.mu.Unlock()
	if !ok {
		g.log.Warn("signed out, remote tier disabled")
	}
}

// Authenticated reports the current auth state.
func (g *Gateway) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// executeRequest runs op through the pipeline: concurrency cap, latency
// accounting, error classification, bounded exponential-backoff retries.
// It issues at most maxRetries+1 attempts and returns the last error when
// all of them fail.
func (g *Gateway) executeRequest(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if !g.Authenticated() {
		return fmt.Errorf("%w: not authenticated", cdperr.ErrTerminalRemote)
	}

	g.mu.Lock()
	g.queued++
	if g.queued-g.stats.InFlight > g.stats.QueuedPeak {
		g.stats.QueuedPeak = g.queued - g.stats.InFlight
	}
	g.mu.Unlock()

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		g.mu.Lock()
		g.queued--
		g.mu.Unlock()
		return ctx.Err()
	}
	g.mu.Lock()
	g.queued--
	g.stats.InFlight++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.stats.InFlight--
		g.mu.Unlock()
		<-g.sem
	}()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			g.log.Warn("retrying remote operation",
				zap.String("op", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			g.mu.Lock()
			g.stats.RetriesIssued++
			g.mu.Unlock()
			g.sleep(delay)
		}

		start := time.Now()
		err := op(ctx)
		g.record(time.Since(start), err == nil)

		if err == nil {
			return nil
		}
		classified := Classify(err)
		if !cdperr.IsRetryable(classified) {
			g.log.Error("terminal remote error", zap.String("op", name), zap.Error(err))
			return classified
		}
		lastErr = classified
	}
	return fmt.Errorf("%w: %s exhausted %d attempts: %s",
		cdperr.ErrTransientRemote, name, maxRetries+1, lastErr.Error())
}

func backoffDelay(n int) time.Duration {
	d := backoffBase
	for i := 0; i < n; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func (g *Gateway) record(latency time.Duration, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.RequestCount++
	if success {
		g.stats.SuccessCount++
	} else {
		g.stats.ErrorCount++
	}
	g.totalLatency += latency
	g.stats.MeanLatency = g.totalLatency / time.Duration(g.stats.RequestCount)
}

// Stats returns a copy of the rolling statistics.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// TestConnection probes the settings table with a limit-1 select, caching
// the result for five minutes. An empty table still counts as connected.
func (g *Gateway) TestConnection(ctx context.Context) bool {
	g.probeMu.Lock()
	if time.Since(g.probeAt) < probeCacheTTL {
		cached := g.probeResult
		g.probeMu.Unlock()
		return cached
	}
	g.probeMu.Unlock()

	ok := g.probe(ctx)

	g.probeMu.Lock()
	g.probeAt = time.Now()
	g.probeResult = ok
	g.probeMu.Unlock()
	return ok
}

func (g *Gateway) probe(ctx context.Context) bool {
	if g.db == nil || !g.Authenticated() {
		return false
	}
	var ids []int64
	err := g.db.WithContext(ctx).Table("settings").Limit(1).Pluck("id", &ids).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		g.log.Warn("connection probe failed", zap.Error(err))
		return false
	}
	return true
}

// InvalidateProbe drops the cached probe result so the next TestConnection
// hits the backend again.
func (g *Gateway) InvalidateProbe() {
	g.probeMu.Lock()
	g.probeAt = time.Time{}
	g.probeMu.Unlock()
}

// HealthCheck reports gateway health from auth state, the probe cache, the
// concurrency cap, and the rolling success rate.
func (g *Gateway) HealthCheck() Health {
	h := Health{Status: StatusHealthy, Stats: g.Stats()}

	if !g.Authenticated() {
		h.Status = StatusDisconnected
		h.Issues = append(h.Issues, "not authenticated")
		return h
	}

	g.probeMu.Lock()
	probed, probeOK := !g.probeAt.IsZero(), g.probeResult
	g.probeMu.Unlock()
	if probed && !probeOK {
		h.Status = StatusDisconnected
		h.Issues = append(h.Issues, "last connection probe failed")
		return h
	}

	if h.Stats.InFlight >= maxConcurrent {
		h.Status = StatusOverloaded
		h.Issues = append(h.Issues, "request slots saturated")
		return h
	}

	if h.Stats.RequestCount >= degradedSample {
		rate := float64(h.Stats.SuccessCount) / float64(h.Stats.RequestCount)
		if rate < 0.8 {
			h.Status = StatusDegraded
			h.Issues = append(h.Issues, fmt.Sprintf("success rate %.0f%% below 80%%", rate*100))
		}
	}
	return h
}
