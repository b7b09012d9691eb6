package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/api/problem"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	callerContextKey contextKey = "caller"
	traceContextKey  contextKey = "trace_id"

	clockLeeway = 30 * time.Second
)

var jwtSecret []byte
var jwtIssuer string
var jwtAudience string

// authClaims carries the caller address either in the dedicated account
// claim or in the registered subject. When both are present they must agree.
type authClaims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

type authFailure struct {
	status int
	slug   string
	detail string
}

// AuthMiddleware authenticates the bearer token and stores the caller address in
// the request context. Every role check downstream is made against that address.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, fail := authenticate(r.Header.Get("Authorization"))
		if fail != nil {
			problem.Write(w, r, fail.status, problem.Type(fail.slug), http.StatusText(fail.status), fail.detail)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func authenticate(header string) (domain.Address, *authFailure) {
	if header == "" {
		return "", &authFailure{http.StatusUnauthorized, "auth/authorization-header-required", "Authorization header required"}
	}
	scheme, tokenString, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
		return "", &authFailure{http.StatusUnauthorized, "auth/invalid-token-format", "Invalid token format"}
	}
	if len(jwtSecret) == 0 {
		return "", &authFailure{http.StatusInternalServerError, "auth/misconfigured", "auth is not configured"}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	}
	if jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtIssuer))
	}
	if jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(jwtAudience))
	}

	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return jwtSecret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", &authFailure{http.StatusUnauthorized, "auth/invalid-token", "Invalid token"}
	}

	account := claims.Account
	if account == "" {
		account = claims.Subject
	}
	caller := domain.NewAddress(account)
	if caller.IsZero() || (claims.Subject != "" && domain.NewAddress(claims.Subject) != caller) {
		return "", &authFailure{http.StatusUnauthorized, "auth/invalid-token-claims", "Invalid token claims"}
	}
	return caller, nil
}

// WithCaller returns a context carrying caller as the authenticated account.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the authenticated caller address, or the zero address.
func CallerFromContext(ctx context.Context) domain.Address {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(callerContextKey).(domain.Address); ok {
		return v
	}
	return ""
}

// TraceIDFromContext returns the request id assigned by TraceMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
