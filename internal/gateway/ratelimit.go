package gateway

import (
	"net"
	"sync"
	"time"
)

// Failed handshakes are counted per remote host over a sliding window.
const (
	authFailWindow = 5 * time.Minute
	authMaxFails   = 10
	authMaxHosts   = 10000
)

// authLimiter refuses new connections from hosts that failed the handshake
// too often. Stale entries are dropped lazily, so it owns no goroutine.
type authLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	failures map[string][]time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{now: time.Now, failures: make(map[string][]time.Time)}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// recentLocked drops failures older than the window and returns the rest.
func (l *authLimiter) recentLocked(host string, now time.Time) []time.Time {
	cutoff := now.Add(-authFailWindow)
	times := l.failures[host]
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	if len(times) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = times
	return times
}

func (l *authLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recentLocked(remoteHost(addr), l.now())) < authMaxFails
}

func (l *authLimiter) recordFailure(addr string) {
	host := remoteHost(addr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authMaxHosts {
		l.evictLocked(now)
	}
	l.failures[host] = append(l.recentLocked(host, now), now)
}

// evictLocked makes room for one more host: first by expiring stale hosts,
// then by dropping the host whose oldest failure is earliest.
func (l *authLimiter) evictLocked(now time.Time) {
	for host := range l.failures {
		l.recentLocked(host, now)
	}
	if len(l.failures) < authMaxHosts {
		return
	}
	var victim string
	var oldest time.Time
	for host, times := range l.failures {
		if victim == "" || times[0].Before(oldest) {
			victim, oldest = host, times[0]
		}
	}
	delete(l.failures, victim)
}
