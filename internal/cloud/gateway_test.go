package cloud

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

func newTestGateway() *Gateway {
	g := New(nil, []byte("test-secret"), zap.NewNop())
	g.sleep = func(time.Duration) {} // no real backoff in tests
	return g
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		terminal bool
	}{
		{"permission sqlstate", &pgconn.PgError{Code: "42501", Message: "denied"}, true},
		{"missing table", &pgconn.PgError{Code: "42P01", Message: "no such table"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "dup"}, true},
		{"bad data", &pgconn.PgError{Code: "22P02", Message: "bad input"}, true},
		{"permission in message", errors.New("row-level permission check failed"), true},
		{"authentication in message", errors.New("JWT authentication expired"), true},
		{"network", errors.New("dial tcp: connection refused"), false},
		{"server error", errors.New("unexpected EOF"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if tc.terminal {
				assert.ErrorIs(t, got, cdperr.ErrTerminalRemote)
			} else {
				assert.ErrorIs(t, got, cdperr.ErrTransientRemote)
			}
		})
	}

	assert.ErrorIs(t, Classify(gorm.ErrRecordNotFound), cdperr.ErrNotFound)
	assert.NoError(t, Classify(nil))
}

func TestExecuteRequestRetriesTransient(t *testing.T) {
	g := newTestGateway()
	attempts := 0

	err := g.executeRequest(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	stats := g.Stats()
	assert.Equal(t, 3, stats.RequestCount)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 2, stats.ErrorCount)
}

func TestExecuteRequestBoundedAttempts(t *testing.T) {
	g := newTestGateway()
	attempts := 0

	err := g.executeRequest(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cdperr.ErrTransientRemote)
	assert.Equal(t, maxRetries+1, attempts, "never more than maxRetries+1 attempts")
}

func TestExecuteRequestTerminalNoRetry(t *testing.T) {
	g := newTestGateway()
	attempts := 0

	err := g.executeRequest(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "42501", Message: "denied"}
	})
	require.ErrorIs(t, err, cdperr.ErrTerminalRemote)
	assert.Equal(t, 1, attempts)
}

func TestExecuteRequestConcurrencyCap(t *testing.T) {
	g := newTestGateway()

	var inFlight, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.executeRequest(context.Background(), "test.op", func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(maxConcurrent))
	assert.Equal(t, 12, g.Stats().SuccessCount)
}

func TestSignedOutGatewayRefusesWork(t *testing.T) {
	g := newTestGateway()
	g.SetAuthenticated(false)

	err := g.executeRequest(context.Background(), "test.op", func(ctx context.Context) error {
		t.Fatal("op must not run while signed out")
		return nil
	})
	assert.ErrorIs(t, err, cdperr.ErrTerminalRemote)

	h := g.HealthCheck()
	assert.Equal(t, StatusDisconnected, h.Status)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0))
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 4*time.Second, backoffDelay(2))
	assert.Equal(t, backoffCap, backoffDelay(10))
}

func TestHealthDegradedOnLowSuccessRate(t *testing.T) {
	g := newTestGateway()
	for i := 0; i < 8; i++ {
		g.record(time.Millisecond, false)
	}
	for i := 0; i < 4; i++ {
		g.record(time.Millisecond, true)
	}

	h := g.HealthCheck()
	assert.Equal(t, StatusDegraded, h.Status)
	assert.NotEmpty(t, h.Issues)
}

func TestSignedImageURLRoundTrip(t *testing.T) {
	g := newTestGateway()

	url, err := g.SignedImageURL("order-images/abc_phone.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "/api/images/")
	assert.Contains(t, url, "token=")

	parts := strings.SplitN(url, "token=", 2)
	require.Len(t, parts, 2)
	path, err := g.VerifyImageToken(parts[1])
	require.NoError(t, err)
	assert.Equal(t, "order-images/abc_phone.jpg", path)
}

func TestSignedImageURLRejectsOutsideBucket(t *testing.T) {
	g := newTestGateway()
	_, err := g.SignedImageURL("../../etc/passwd")
	assert.ErrorIs(t, err, cdperr.ErrValidation)
}

func TestVerifyImageTokenRejectsGarbage(t *testing.T) {
	g := newTestGateway()
	_, err := g.VerifyImageToken("not-a-token")
	assert.Error(t, err)
}
