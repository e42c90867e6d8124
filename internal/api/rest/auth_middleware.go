package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/errors"
)

type contextKey string

const (
	contextKeyUserID   contextKey = "user_id"
	contextKeyUserName contextKey = "user_name"
)

// Claims are the JWT claims minted by the external auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
}

// AuthMiddleware validates bearer tokens and stashes the identity in the
// request context.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Require rejects requests without a valid token.
func (a *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims)))
	})
}

// Optional attaches the identity when a valid token is present and lets the
// request through anonymously otherwise. Used on public read endpoints that
// personalize their response.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.claimsFromRequest(r); err == nil {
			r = r.WithContext(withIdentity(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// Identity resolves the connecting user for the websocket upgrade, where
// browsers cannot set an Authorization header and pass the token in the
// query string instead.
func (a *AuthMiddleware) Identity(r *http.Request) uuid.UUID {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return uuid.Nil
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return uuid.Nil
	}
	return claims.UserID
}

func (a *AuthMiddleware) claimsFromRequest(r *http.Request) (*Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errors.NewUnauthorizedError("Authorization required")
	}
	return a.parseToken(token)
}

func (a *AuthMiddleware) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewUnauthorizedError("Unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.NewUnauthorizedError("Token carries no user identity")
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func withIdentity(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID, claims.UserID)
	ctx = context.WithValue(ctx, contextKeyUserName, claims.Name)
	return ctx
}

func userIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKeyUserID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func userNameFrom(ctx context.Context) string {
	name, _ := ctx.Value(contextKeyUserName).(string)
	return name
}
