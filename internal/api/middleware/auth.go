// Package middleware guards the read-only status API behind an API key or a
// scoped JWT. There is no login endpoint and no per-user identity in this
// domain — every caller is either a trusted dashboard holding a static API
// key, or a bearer of a token minted out-of-band for status reads — so a
// valid JWT is only accepted if it carries the "status:read" scope this
// bridge issues tokens for, not merely a valid signature.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// statusReadScope is the only scope this middleware ever grants a JWT for;
// the bridge has one protected surface (status reads), so there is nothing
// else for a scope claim to distinguish yet.
const statusReadScope = "status:read"

// APIKeyAuth validates a request's Authorization/X-API-Key header against a
// configured set of API keys, or a JWT signed with jwtSecret and scoped to
// statusReadScope. publicPaths lists the exact request paths exempt from
// both checks — callers pass the same slice the router registers without
// auth, so the exemption list has one source of truth.
type APIKeyAuth struct {
	users       map[string]struct{} // set of valid API keys
	jwtSecret   []byte
	publicPaths map[string]struct{}
}

// NewAPIKeyAuth creates a new auth middleware.
func NewAPIKeyAuth(users []string, jwtSecret string, publicPaths []string) *APIKeyAuth {
	uMap := make(map[string]struct{}, len(users))
	for _, k := range users {
		uMap[k] = struct{}{}
	}
	pMap := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		pMap[p] = struct{}{}
	}
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &APIKeyAuth{users: uMap, jwtSecret: secret, publicPaths: pMap}
}

// Handler returns the middleware handler.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			if a.jwtSecret != nil && a.hasStatusReadScope(tokenString) {
				next.ServeHTTP(w, r)
				return
			}

			// Not a scoped JWT; fall back to treating the bearer value as
			// a plain API key.
			if _, ok := a.users[tokenString]; ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			if _, ok := a.users[apiKey]; ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// hasStatusReadScope reports whether tokenString is a validly-signed JWT
// carrying the status:read scope this middleware's one protected surface
// requires.
func (a *APIKeyAuth) hasStatusReadScope(tokenString string) bool {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	scope, _ := claims["scope"].(string)
	return scope == statusReadScope
}
