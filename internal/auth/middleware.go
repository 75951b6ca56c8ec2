// Package auth guards the analysis endpoint with HMAC-signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Rejection reasons. Their text is returned to the caller as-is.
var (
	ErrNoSecret       = errors.New("missing JWT secret")
	ErrMissingHeader  = errors.New("authorization header required")
	ErrBadHeader      = errors.New("invalid authorization header")
	ErrMissingToken   = errors.New("token missing")
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongAudience  = errors.New("invalid audience")
	ErrMissingSubject = errors.New("missing subject")
)

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying the caller's token subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// GetSubject retrieves the authenticated token subject from context.
func GetSubject(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok && subject != ""
}

// Enabled reports whether a guard should be installed for the given secret.
func Enabled(secret string) bool {
	return strings.TrimSpace(secret) != ""
}

// Verifier checks Authorization header values against one secret and optional audience.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier trims both inputs; an empty audience accepts any.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
	}
}

// Verify returns the subject of a valid "Bearer <token>" header value.
func (v *Verifier) Verify(header string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}

	raw, err := bearerToken(header)
	if err != nil {
		return "", err
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, v.key, jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
	}))
	if err != nil {
		return "", ErrInvalidToken
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return "", ErrWrongAudience
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrBadHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// JWTMiddleware rejects requests whose bearer token fails Verify with 401 and
// puts the subject of accepted ones on the request context.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	verifier := NewVerifier(secret, audience)
	return func(c *gin.Context) {
		subject, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Request = c.Request.WithContext(WithSubject(c.Request.Context(), subject))
		c.Next()
	}
}
