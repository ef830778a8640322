package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// userRateLimiter keys by the authenticated user id so each user gets an
// independent bucket, separate from the bot-facing one below (spec §4.3/§5).
func userRateLimiter(ratePerMin int) func(http.Handler) http.Handler {
	return httprate.Limit(ratePerMin, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return userIDFromContext(r.Context()), nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// botRateLimiter keys by the {id} path parameter, giving each bot its own
// bucket independent of the user-facing limiter.
func botRateLimiter(ratePerMin int) func(http.Handler) http.Handler {
	return httprate.Limit(ratePerMin, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return chi.URLParam(r, "id"), nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "rate_limited"})
}
