package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rideengine/internal/domain"
)

const (
	principalKey = "principal"

	headerUserID   = "X-User-ID"
	headerUsername = "X-Username"
	headerUserRole = "X-User-Role"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityConfig controls how the caller is identified.
type IdentityConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables tokens.
	JWTSecret string
	// TrustHeaders accepts identity headers set by an upstream gateway.
	// Ignored when JWTSecret is set.
	TrustHeaders bool
}

// Identity resolves the caller from a bearer token or gateway headers and
// stores it on the context. Requests without credentials pass through
// anonymous; an invalid token is rejected. With a JWT secret configured only
// tokens identify the caller.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	trustHeaders := cfg.TrustHeaders && cfg.JWTSecret == ""

	return func(c *gin.Context) {
		if cfg.JWTSecret != "" {
			auth := c.GetHeader("Authorization")
			if auth == "" {
				c.Next()
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			p, err := parseToken(token, []byte(cfg.JWTSecret))
			if err != nil {
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			c.Set(principalKey, p)
			c.Next()
			return
		}

		if trustHeaders {
			if userID := c.GetHeader(headerUserID); userID != "" {
				role := domain.Role(strings.ToUpper(c.GetHeader(headerUserRole)))
				if !role.Valid() {
					abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid role header")
					return
				}
				c.Set(principalKey, domain.Principal{
					UserID:   userID,
					Username: c.GetHeader(headerUsername),
					Role:     role,
				})
			}
		}

		c.Next()
	}
}

func parseToken(raw string, secret []byte) (domain.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return domain.Principal{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Principal{}, errors.New("invalid token")
	}
	role := domain.Role(strings.ToUpper(claims.Role))
	if !role.Valid() {
		return domain.Principal{}, errors.New("invalid role claim")
	}

	return domain.Principal{UserID: claims.UserID, Username: claims.Username, Role: role}, nil
}

// PrincipalFrom returns the caller stored by Identity.
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

// RequireRole rejects anonymous callers with 401 and callers holding none of
// the roles with 403. With no roles any authenticated caller passes.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if len(roles) == 0 {
			c.Next()
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		abortJSON(c, http.StatusForbidden, "forbidden", "role not allowed")
	}
}

func abortJSON(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": message})
}
