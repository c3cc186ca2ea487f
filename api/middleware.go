package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/utils"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tokenBucket refills limit tokens per window.
type tokenBucket struct {
	tokens   float64
	limit    float64
	window   time.Duration
	lastSeen time.Time
}

type requestLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	limit   int
	window  time.Duration
}

func newLimiter(limit int, window time.Duration) *requestLimiter {
	return &requestLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		window:  window,
	}
}

func (l *requestLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.limit), limit: float64(l.limit), window: l.window, lastSeen: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.lastSeen)
	b.tokens += elapsed.Seconds() * b.limit / b.window.Seconds()
	if b.tokens > b.limit {
		b.tokens = b.limit
	}
	b.lastSeen = now
	l.cleanupLocked(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// cleanupLocked drops buckets idle for more than two windows.
func (l *requestLimiter) cleanupLocked(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > 2*l.window {
			delete(l.buckets, key)
		}
	}
}

// withSession resolves the session cookie, rejects expired or orphaned
// sessions, enforces CSRF on mutating methods and refreshes the sliding
// expiry.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		ctx := r.Context()
		rec, err := s.sessions.Get(ctx, cookie.Value)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		now := utils.NowUTC()
		if !rec.ExpiresAt.After(now) {
			_ = s.sessions.Delete(ctx, rec.ID)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
			return
		}
		user, err := s.users.GetByID(ctx, rec.UserID)
		if err != nil || !user.IsActive {
			_ = s.sessions.Delete(ctx, rec.ID)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		if isMutating(r.Method) {
			if r.Header.Get(auth.CSRFHeaderName) != rec.CSRFToken {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "csrf token mismatch"})
				return
			}
		}
		_ = s.sessionManager.Refresh(ctx, rec.ID)
		next(w, r.WithContext(context.WithValue(ctx, auth.SessionContextKey, rec)))
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) requirePermission(permission string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec := auth.SessionFromContext(r.Context())
			if rec == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			if !s.policy.Allowed(rec.Roles, permission) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
			next(w, r)
		}
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// clientIP resolves the caller address, honoring X-Forwarded-For only when
// the direct peer is a configured trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.isTrustedProxy(host) {
		return host
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return host
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.isTrustedProxy(hop) {
			return hop
		}
	}
	return host
}

func (s *Server) isTrustedProxy(ip string) bool {
	for _, trusted := range s.cfg.Security.TrustedProxies {
		if strings.TrimSpace(trusted) == ip {
			return true
		}
	}
	return false
}
