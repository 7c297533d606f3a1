package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/suPer8Hu/comet/internal/common"
)

const SubjectKey = "subject"

const issuer = "comet"

var ErrInvalidToken = errors.New("invalid token")

// IssueToken signs an HS256 ops token for subject.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AuthRequired rejects requests without a valid "Authorization: Bearer" ops token.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			common.Abort(c, http.StatusUnauthorized, 40100, "missing bearer token")
			return
		}
		claims, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40101, "invalid token")
			return
		}
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
