package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleEviction = 10 * time.Minute
	pruneAbove   = 1024
)

// Limiter enforces a fixed requests-per-minute budget per client IP for one
// route. Each route gets its own Limiter so budgets don't interfere.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*client
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func New(perMinute int) *Limiter {
	return &Limiter{perMinute: perMinute, clients: make(map[string]*client)}
}

// Wrap applies the limit to a handler, answering 429 when the client's
// budget is exhausted.
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"Rate limit exceeded"}`))
			return
		}
		next(w, r)
	}
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.clients[key] = c
	}
	c.seen = time.Now()
	if len(l.clients) > pruneAbove {
		l.prune()
	}
	return c.lim.Allow()
}

// prune drops idle clients; called with the lock held.
func (l *Limiter) prune() {
	cutoff := time.Now().Add(-idleEviction)
	for key, c := range l.clients {
		if c.seen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// first hop is the originating client
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
