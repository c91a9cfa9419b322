package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/provider-gateway/internal/platform/api"
	"github.com/example/provider-gateway/internal/platform/httpserver"
)

type ctxKeySubject struct{}

// SubjectFromContext returns the JWT subject injected by RequireRole.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeySubject{}).(string)
	return v, ok
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireRole validates the Bearer token and lets the request through only
// when its role claim equals role (case-insensitive). An empty Secret rejects
// everything, so write endpoints stay closed until JWT_SECRET is configured.
func RequireRole(verifier JWTVerifier, role string) func(next http.Handler) http.Handler {
	want := strings.ToLower(strings.TrimSpace(role))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := httpserver.RequestIDFromContext(r.Context())
			if len(verifier.Secret) == 0 {
				api.Forbidden(w, "AUTH_DISABLED", "admin access is not configured", rid)
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				api.Unauthorized(w, "MISSING_TOKEN", "bearer token required", rid)
				return
			}
			claims, err := verifier.Parse(raw)
			if err != nil || strings.TrimSpace(claims.Subject) == "" {
				api.Unauthorized(w, "INVALID_TOKEN", "invalid bearer token", rid)
				return
			}
			if strings.ToLower(strings.TrimSpace(claims.Role)) != want {
				api.Forbidden(w, "FORBIDDEN", "insufficient role", rid)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySubject{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
