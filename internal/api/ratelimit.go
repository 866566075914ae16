package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/earthring/chunkstream/internal/auth"
)

const (
	rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`
)

func newLimiter(limit int, window time.Duration) *limiter.Limiter {
	return limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	return rateLimit(newLimiter(limit, window), func(r *http.Request) string {
		return "ip:" + getClientIP(r)
	})
}

// ObserverRateLimitMiddleware limits requests per observer. It must run
// after auth.TokenService.Middleware; requests without an observer fall
// back to the client IP.
func ObserverRateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	return rateLimit(newLimiter(limit, window), func(r *http.Request) string {
		if id, ok := auth.GetObserverID(r); ok && !strings.HasPrefix(id, "anonymous-") {
			return "observer:" + id
		}
		return "ip:" + getClientIP(r)
	})
}

func rateLimit(instance *limiter.Limiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			context, err := instance.Get(r.Context(), keyFn(r))
			if err != nil {
				// A failing limiter lets the request through.
				log.Printf("[API] rate limiter error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

			if context.Reached {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				retryAfter := int(time.Until(time.Unix(context.Reset, 0)).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
					log.Printf("[API] error writing rate limit response: %v", err)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request. The first
// X-Forwarded-For entry wins for proxied requests.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
