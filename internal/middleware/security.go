package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vevsa/books-auth/pkg/clientip"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerXXSSProtection          = "X-XSS-Protection"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerXXSSProtection, "1; mode=block")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'self'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost
// (bare hostname, no scheme or port). An empty allowedHost disables it.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqHost := r.Host
			if host, _, err := net.SplitHostPort(reqHost); err == nil {
				reqHost = host
			}
			if !strings.EqualFold(strings.TrimSpace(reqHost), strings.TrimSpace(allowedHost)) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Idle buckets are
// evicted by a janitor started on first use.
type IPRateLimiter struct {
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	message string
	// paths restricts the limiter to these exact paths when non-empty.
	paths map[string]bool

	mu          sync.Mutex
	entries     map[string]*limiterEntry
	janitorOnce sync.Once
}

func NewIPRateLimiter(limit rate.Limit, burst int, message string, paths ...string) *IPRateLimiter {
	l := &IPRateLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     30 * time.Minute,
		message: message,
		entries: make(map[string]*limiterEntry),
	}
	if len(paths) > 0 {
		l.paths = make(map[string]bool, len(paths))
		for _, p := range paths {
			l.paths[p] = true
		}
	}
	return l
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.janitorOnce.Do(func() { go l.janitor(5 * time.Minute) })

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (l *IPRateLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		l.evictIdle(time.Now())
	}
}

func (l *IPRateLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if now.Sub(e.lastUse) > l.ttl {
			delete(l.entries, ip)
		}
	}
}

func (l *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.paths != nil && !l.paths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.get(clientip.RealClientIP(r)).Allow() {
			tooManyRequests(w, l.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"log":"` + message + `","flag":"ACTION_FAILED"}`))
}

// GlobalRateLimit limits each IP to 5 req/s, burst 20.
func GlobalRateLimit() *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(5), 20, "Too many requests. Please slow down.")
}

// LoginRateLimit allows one login attempt every 5s per IP, burst 2.
func LoginRateLimit() *IPRateLimiter {
	return NewIPRateLimiter(rate.Every(5*time.Second), 2,
		"Too many login attempts. Please try again later.", "/login")
}

// ProductionSecurity returns SecurityHeaders, HostCheck, GlobalRateLimit
// and LoginRateLimit in that order.
func ProductionSecurity(allowedHost string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(allowedHost),
		GlobalRateLimit().Handler,
		LoginRateLimit().Handler,
	}
}
