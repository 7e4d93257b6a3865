// Package auth verifies bearer tokens and places the caller's identity in the
// request context. The workflow trusts the identity established here; role
// decisions live in the services, not in the middleware.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

// Claims are the token claims the identity provider issues: the employee id
// in the subject plus role and email.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens against a shared signing key.
type Verifier struct {
	signingKey []byte
	logger     *slog.Logger
}

func NewVerifier(signingKey []byte, logger *slog.Logger) *Verifier {
	return &Verifier{signingKey: signingKey, logger: logger}
}

// ParseToken validates the token and extracts the actor identity.
func (v *Verifier) ParseToken(tokenString string) (requestcontext.ActorIdentity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return requestcontext.ActorIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
	}

	employeeID, err := id.ParseEmployeeID(claims.Subject)
	if err != nil {
		return requestcontext.ActorIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "token subject is not an employee id")
	}
	role := id.Role(claims.Role)
	if !role.IsValid() {
		return requestcontext.ActorIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "token carries an unknown role")
	}
	return requestcontext.ActorIdentity{ID: employeeID, Role: role, Email: claims.Email}, nil
}

// RequireAuth rejects requests without a valid bearer token and injects the
// verified actor into the context for downstream handlers.
func RequireAuth(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				if logger != nil {
					logger.WarnContext(ctx, "unauthorized access, missing bearer token",
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			actor, err := verifier.ParseToken(token)
			if err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "unauthorized access, token rejected",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
