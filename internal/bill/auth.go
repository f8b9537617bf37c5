package bill

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultUserID owns every bill when no authentication is configured
const DefaultUserID = "default"

// BasicAuth holds basic authentication credentials. The username doubles as
// the user id bills are stored under.
type BasicAuth struct {
	Username string
	Password string
}

// Auth configures how requests are mapped to a user
type Auth struct {
	Basic     BasicAuth
	JWTSecret []byte
}

func (a Auth) enabled() bool {
	return a.Basic.Username != "" || a.Basic.Password != "" || len(a.JWTSecret) > 0
}

// Claims are the bearer token claims; Subject is the user id
type Claims struct {
	jwt.RegisteredClaims
}

// ParseJWT validates an HS256 token and returns its claims
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: missing sub")
	}
	return claims, nil
}

// IssueToken signs a bearer token for userID. A zero ttl means no expiry.
func IssueToken(userID string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: empty user id")
	}
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authenticate returns the user a request acts as
func (a Auth) authenticate(r *http.Request) (string, bool) {
	if !a.enabled() {
		return DefaultUserID, true
	}

	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer ") && len(a.JWTSecret) > 0:
		claims, err := ParseJWT(strings.TrimPrefix(header, "Bearer "), a.JWTSecret)
		if err != nil {
			return "", false
		}
		return claims.Subject, true
	case strings.HasPrefix(header, "Basic ") && a.Basic.Username != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return "", false
		}
		credentials := strings.SplitN(string(decoded), ":", 2)
		if len(credentials) != 2 {
			return "", false
		}
		userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(a.Basic.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(a.Basic.Password)) == 1
		if !userOK || !passOK {
			return "", false
		}
		return a.Basic.Username, true
	}
	return "", false
}

type userKey struct{}

// WithUser stores the authenticated user id in ctx
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the authenticated user id, or DefaultUserID
func UserFrom(ctx context.Context) string {
	if id, ok := ctx.Value(userKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultUserID
}
