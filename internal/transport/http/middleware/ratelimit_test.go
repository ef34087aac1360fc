package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func behindProxy(t *testing.T) *RateLimiter {
	t.Helper()
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)
	return NewRateLimiter(rate.Limit(1), 1, trusted)
}

func request(remote string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestClientIP_IgnoresHeadersFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	req := request("203.0.113.7:4000", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-Ip": "5.6.7.8"})
	assert.Equal(t, "203.0.113.7", rl.clientIP(req))
}

func TestClientIP_RightmostUntrustedHopBehindProxy(t *testing.T) {
	rl := behindProxy(t)
	req := request("10.1.2.3:4000", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.9.9.9"})
	assert.Equal(t, "1.2.3.4", rl.clientIP(req))
}

func TestClientIP_XRealIPBehindProxy(t *testing.T) {
	rl := behindProxy(t)
	req := request("192.168.1.1:54321", map[string]string{"X-Real-Ip": "9.10.11.12"})
	assert.Equal(t, "9.10.11.12", rl.clientIP(req))
}

func TestClientIP_RemoteAddrFallback(t *testing.T) {
	rl := behindProxy(t)
	assert.Equal(t, "192.168.1.1", rl.clientIP(request("192.168.1.1:54321", nil)))
}

func TestParseTrustedProxies_Rejects(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 2, nil)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, request("7.7.7.7:1000", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, request("8.8.8.8:1000", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiter_SpoofedHeaderDoesNotResetBucket(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, nil)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, request("7.7.7.7:1000", map[string]string{"X-Forwarded-For": "1.1.1." + strconv.Itoa(i)}))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_SweepDropsIdleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	rl.now = func() time.Time { return now }

	rl.get("1.1.1.1")
	now = now.Add(idleAfter / 2)
	rl.get("2.2.2.2")
	assert.Equal(t, 2, rl.sweep())

	now = now.Add(idleAfter/2 + time.Second)
	assert.Equal(t, 1, rl.sweep())
	_, kept := rl.limiters["2.2.2.2"]
	assert.True(t, kept)
}

func TestRateLimiter_CleanupStops(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		rl.Cleanup(done)
		close(finished)
	}()
	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}
