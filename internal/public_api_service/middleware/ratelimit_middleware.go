package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eduon/notify-gateway/internal/ratelimit"
)

var limitedRequestsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "http",
		Name:      "rate_limited_requests_total",
		Help:      "Total number of HTTP requests rejected by the rate limiter.",
	},
	[]string{"path"},
)

type rateLimitErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
}

// ClientKey derives the rate-limit key for a request. Authenticated users
// are tracked per user id, falling back to academy id, so an academy
// behind one NAT does not share a single IP bucket. Anonymous requests
// use the client IP, preferring proxy headers over RemoteAddr.
func ClientKey(r *http.Request) string {
	if user, ok := GetAuthenticatedUser(r.Context()); ok {
		if user.ID != "" {
			return "user:" + user.ID
		}
		if user.AcademyID != "" {
			return "academy:" + user.AcademyID
		}
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// RateLimitMiddleware enforces cfg against the shared store, keyed by
// class and ClientKey. The class prefix keeps counters independent when
// several route classes stack on one route. X-RateLimit-* headers are
// attached to every response; rejected requests get a 429 JSON body with
// a Retry-After header.
func RateLimitMiddleware(store *ratelimit.Store, class string, cfg ratelimit.Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := store.Check(class+"|"+ClientKey(r), cfg)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if decision.Limited {
				limitedRequestsCounter.WithLabelValues(r.URL.Path).Inc()
				retryAfter := decision.RetryAfter(store.Now())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(rateLimitErrorResponse{
					Error:      cfg.Message,
					Code:       "RATE_LIMITED",
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
