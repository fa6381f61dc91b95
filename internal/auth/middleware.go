package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/respond"
)

// contextKey is package-private so no other package can read or shadow the
// values stored under it.
type contextKey string

const relayNameKey contextKey = "relayName"

// FailureGuard budgets failed secret checks per client. middleware.RateLimiter
// satisfies it.
type FailureGuard interface {
	// Blocked reports whether r's client has no failures left to spend.
	Blocked(r *http.Request) bool
	// Penalize spends one failure from r's client's budget.
	Penalize(r *http.Request)
}

// RequireSecret rejects requests whose Authorization header is not
// "Bearer <API secret>" with 401 and the standard error body.
//
// A client that has used up its failure budget on guard gets 429 before any
// bcrypt work is done. guard may be nil.
func RequireSecret(v *SecretVerifier, guard FailureGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard != nil && guard.Blocked(r) {
				respond.Error(w, apperror.RateLimited("too many failed authentication attempts"))
				return
			}
			if err := v.Verify(bearerToken(r)); err != nil {
				if guard != nil {
					guard.Penalize(r)
				}
				respond.Error(w, apperror.Unauthorized("a valid API secret is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTicket validates the ?ticket= query parameter and stores the relay
// name it names in the request context.
func RequireTicket(tickets *TicketService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, err := tickets.Validate(r.URL.Query().Get("ticket"))
			if err != nil {
				respond.Error(w, apperror.Unauthorized("a valid relay ticket is required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRelayName(r.Context(), name)))
		})
	}
}

// WithRelayName returns ctx carrying the authenticated relay name.
func WithRelayName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, relayNameKey, name)
}

// RelayNameFromContext returns the name RequireTicket authenticated, or
// ("", false) when the request carried no valid ticket.
func RelayNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(relayNameKey).(string)
	return name, ok && name != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
