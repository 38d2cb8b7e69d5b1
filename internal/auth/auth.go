// Package auth is a minimal pass-through for the out-of-scope auth layer
// (spec §1 Non-goals: HTTP authentication/authorization is not this
// gateway's concern). It parses a bearer token's claims when JWT_SECRET
// is configured and a token is present, purely so the request's subject
// can be logged and threaded through as UserID context — it never rejects
// a request for a missing or invalid token. A real deployment terminates
// auth in front of this gateway; this package only marks where that
// middleware would attach. Grounded on the teacher's internal/auth
// JWTService.Validate, trimmed from issuing/enforcing tokens down to
// read-only claim extraction.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const userIDKey contextKey = iota

// claims is the subset of a bearer token's payload this stub reads.
type claims struct {
	jwt.RegisteredClaims
}

// Passthrough decodes an optional bearer token's subject claim using
// secret, for logging only. It is not a security boundary.
type Passthrough struct {
	secret []byte
}

// New builds a Passthrough. An empty secret disables token parsing
// entirely — every request is treated as anonymous.
func New(secret string) *Passthrough {
	return &Passthrough{secret: []byte(secret)}
}

// Middleware attaches the bearer token's subject (if any) to the request
// context and always calls next, regardless of whether a token was
// present or valid.
func (p *Passthrough) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := p.subjectFrom(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Passthrough) subjectFrom(r *http.Request) (string, bool) {
	if len(p.secret) == 0 {
		return "", false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("bearer "):])

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || strings.TrimSpace(c.Subject) == "" {
		return "", false
	}
	return c.Subject, true
}

// UserID reads the subject attached by Middleware, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
