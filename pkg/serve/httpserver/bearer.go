// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lirios/ostree-upload/pkg/transport"
)

const (
	BearerPrefix = "Bearer "
)

// Operation is the scope a token grants.
type Operation string

const (
	// OperationPull covers the read side: /ping, /info and
	// /missing_objects.
	OperationPull Operation = "pull"
	// OperationPush covers the whole protocol.
	OperationPush Operation = "push"
)

type BearerMD struct {
	Operation            Operation `json:"operation"`
	jwt.RegisteredClaims           // v5 new
}

func (t *BearerMD) Match(op Operation) bool {
	switch op {
	case OperationPull:
		return t.Operation == OperationPull || t.Operation == OperationPush
	case OperationPush:
		return t.Operation == OperationPush
	}
	return false
}

// GenerateJWT mints an HS256 token granting op until expiresAt. A zero
// expiresAt means no expiry.
func GenerateJWT(secret string, op Operation, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := BearerMD{
		Operation: op,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	// HS256
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

func parseBearerToken(auth string) (string, bool) {
	if len(auth) < len(BearerPrefix) || !strings.EqualFold(auth[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}
	return auth[len(BearerPrefix):], true
}

// authorize accepts the request when its bearer token is either one of
// the configured static tokens (full push scope) or a JWT signed with
// the configured secret whose operation claim covers op. On failure the
// error envelope has been written.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, op Operation) bool {
	bearerToken, ok := parseBearerToken(r.Header.Get("Authorization"))
	if !ok {
		renderFailureFormat(w, r, http.StatusUnauthorized, transport.ErrorTypeInvalidToken, "missing bearer token")
		return false
	}
	if s.staticTokens[bearerToken] {
		return true
	}
	if len(s.secret) == 0 {
		renderFailureFormat(w, r, http.StatusUnauthorized, transport.ErrorTypeInvalidToken, "unknown token")
		return false
	}
	var claims BearerMD
	if _, err := jwt.ParseWithClaims(bearerToken, &claims, func(token *jwt.Token) (any, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		renderFailureFormat(w, r, http.StatusUnauthorized, transport.ErrorTypeInvalidToken, "invalid token: %v", err)
		return false
	}
	if !claims.Match(op) {
		renderFailureFormat(w, r, http.StatusForbidden, transport.ErrorTypeTokenInsufficient, "token not valid for %s", op)
		return false
	}
	return true
}

// OnFunc guards handler behind the token check for op.
func (s *Server) OnFunc(handler http.HandlerFunc, op Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(w, r, op) {
			return
		}
		handler(w, r)
	}
}
