package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	apierrors "github.com/hrygo/calbook/server/internal/errors"
)

// Issuer is the iss claim of tokens minted by calbook.
const Issuer = "calbook"

// Claims are the access token claims. The subject names the API client.
type Claims struct {
	jwt.RegisteredClaims
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims of the current request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// GenerateAccessToken signs an HS256 token for subject valid for ttl.
func GenerateAccessToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return token, nil
}

// ParseAccessToken verifies token against secret and returns its claims.
func ParseAccessToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, errors.Wrap(err, "invalid access token")
	}
	return claims, nil
}

// Auth requires a valid bearer token on every request. An empty secret
// disables authentication.
func Auth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return apierrors.Unauthorized("missing bearer token")
			}
			claims, err := ParseAccessToken(secret, strings.TrimSpace(token))
			if err != nil {
				return apierrors.Unauthorized("invalid bearer token")
			}
			req := c.Request()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), claimsKey{}, claims)))
			return next(c)
		}
	}
}
