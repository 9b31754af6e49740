package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/posledger/internal/domain/auth"
	"github.com/xenking/posledger/pkg/httpmiddleware"
)

// APIKeyHeader carries a raw API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// Claims are the bearer token claims. Subject holds the user id.
type Claims struct {
	Role auth.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller of a request from an API key or, when a
// JWT secret is configured, a bearer token.
type Authenticator struct {
	apikeys   auth.Repository
	pepper    []byte
	jwtSecret []byte
}

// NewAuthenticator creates an Authenticator. An empty jwtSecret disables
// bearer tokens.
func NewAuthenticator(apikeys auth.Repository, pepper, jwtSecret []byte) *Authenticator {
	return &Authenticator{
		apikeys:   apikeys,
		pepper:    pepper,
		jwtSecret: jwtSecret,
	}
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// api_keys.key_hash.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Principal authenticates r.
func (a *Authenticator) Principal(ctx context.Context, r *http.Request) (auth.Principal, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return a.apiKey(ctx, key)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && len(a.jwtSecret) > 0 {
		return a.bearer(token)
	}
	return auth.Principal{}, errUnauthorized
}

// apiKey computes the HMAC of key, looks it up and compares in constant time.
func (a *Authenticator) apiKey(ctx context.Context, key string) (auth.Principal, error) {
	hexHash := HashAPIKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return auth.Principal{}, errors.Wrap(errUnauthorized, err.Error())
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errUnauthorized
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Principal{}, errUnauthorized
	}
	if !info.Role.Valid() {
		return auth.Principal{}, errUnauthorized
	}
	return auth.Principal{UserID: info.UserID, Role: info.Role}, nil
}

func (a *Authenticator) bearer(token string) (auth.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return auth.Principal{}, errors.Wrap(errUnauthorized, err.Error())
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return auth.Principal{}, errUnauthorized
	}
	return auth.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken signs a bearer token for p valid for ttl.
func IssueToken(secret []byte, p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Authenticate rejects requests without valid credentials and stores the
// principal in the request context.
func (a *Authenticator) Authenticate() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Principal(r.Context(), r)
			if err != nil {
				zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
				return
			}
			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects principals holding none of roles.
func RequireRole(roles ...auth.Role) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
				return
			}
			if !p.Allowed(roles...) {
				writeProblem(w, http.StatusForbidden, "forbidden", "role "+string(p.Role)+" may not perform this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
