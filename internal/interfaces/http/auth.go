package http

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/p2p-approval/pkg/apperr"
)

const actorKey = "actor"

// Authenticator verifies HS256 bearer tokens. The subject claim is the actor.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. issuer may be empty.
func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// IssueToken signs a token for actor valid for ttl
func (a *Authenticator) IssueToken(actor string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   actor,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Actor verifies token and returns its subject
func (a *Authenticator) Actor(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return "", err
	}

	actor := strings.TrimSpace(claims.Subject)
	if actor == "" {
		return "", errors.New("token has no subject")
	}
	return actor, nil
}

// Middleware rejects requests without a valid bearer token
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
			return
		}

		actor, err := a.Actor(token)
		if err != nil {
			abortWithError(c, apperr.Wrap(err, apperr.KindUnauthorized, "invalid token"))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func abortWithError(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(e.Status(), Response{Success: false, Error: e})
}

func actorFrom(c *gin.Context) string {
	return c.GetString(actorKey)
}
