package middleware

import (
	"net/http"

	"advert-service/pkg/utils"

	"golang.org/x/time/rate"
)

// RateLimit applies one token bucket to all requests. rps <= 0 disables it.
func RateLimit(rps int, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = rps
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				utils.RespondWithErrorJSON(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
