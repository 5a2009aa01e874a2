package ratelimit

import (
	"net/http"

	apperrors "github.com/record-sync/internal/errors"
	"github.com/record-sync/internal/logging"
)

// DefaultIdentityHeader names the header that identifies the calling service.
const DefaultIdentityHeader = "Service-Name"

// ErrorResponder writes an error response for a rejected request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Middleware wraps HTTP handlers with an admission check.
type Middleware struct {
	limiter        *Limiter
	identityHeader string
	respond        ErrorResponder
}

// NewMiddleware creates the HTTP middleware. respond renders rejections;
// it receives a rate limited error (429) or a limiter unavailable error (503).
func NewMiddleware(limiter *Limiter, identityHeader string, respond ErrorResponder) *Middleware {
	if identityHeader == "" {
		identityHeader = DefaultIdentityHeader
	}
	return &Middleware{
		limiter:        limiter,
		identityHeader: identityHeader,
		respond:        respond,
	}
}

// Limit returns middleware that admits at most the configured number of
// requests per window for the endpoint, counted per caller identity.
// The check runs before the wrapped handler does anything.
func (m *Middleware) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.Header.Get(m.identityHeader)

			decision, err := m.limiter.Allow(r.Context(), endpoint, identity)
			if err != nil {
				// Deny when the counter store cannot be consulted
				logging.FromContext(r.Context()).
					WithField("endpoint", endpoint).
					WithError(err).
					Warn("Rate limiter unavailable, rejecting request")
				m.respond(w, r, apperrors.NewLimiterUnavailableError(err))
				return
			}

			if !decision.Allowed {
				logging.FromContext(r.Context()).WithFields(map[string]interface{}{
					"endpoint":   endpoint,
					"identity":   identity,
					"count":      decision.Count,
					"retryAfter": decision.RetryAfter,
				}).Debug("Request rate limited")
				m.respond(w, r, apperrors.NewRateLimitedError(decision.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
