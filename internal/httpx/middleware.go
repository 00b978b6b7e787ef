package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
)

// TokenResolver maps a bearer token to a principal. Implemented by
// auth.Service; tests plug in a map-backed stub.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (auth.Principal, error)
}

type ctxKey int

const principalKey ctxKey = 0

// Authenticate resolves the Authorization header when present. Tanpa
// header -> principal anonim (guest checkout tetap jalan); token rusak
// atau kedaluwarsa -> 401 langsung.
func Authenticate(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authorization header"})
				return
			}
			p, err := resolver.Resolve(r.Context(), parts[1])
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

// PrincipalFrom returns the resolved principal, or the anonymous zero
// value.
func PrincipalFrom(ctx context.Context) auth.Principal {
	if p, ok := ctx.Value(principalKey).(auth.Principal); ok {
		return p
	}
	return auth.Principal{}
}
