package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleRequester  Role = "requester"
	RoleCounselor  Role = "counselor"
	RoleSupervisor Role = "supervisor"
)

func (r Role) valid() bool {
	switch r {
	case RoleRequester, RoleCounselor, RoleSupervisor:
		return true
	}
	return false
}

// Caller is the authenticated principal of a request.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) Supervisor() bool { return c.Role == RoleSupervisor }

const (
	callerKey = "caller"

	HeaderCallerID   = "X-Caller-Id"
	HeaderCallerRole = "X-Caller-Role"
)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Identity authenticates callers with HS256 bearer tokens. Without a secret
// it trusts the X-Caller-Id and X-Caller-Role headers, which is only meant
// for local development.
type Identity struct {
	secret []byte
	issuer string
}

func NewIdentity(secret, issuer string) *Identity {
	return &Identity{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for callerID. Used by tooling and tests.
func (i *Identity) Issue(callerID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(role),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a bearer token and returns its caller.
func (i *Identity) Parse(token string) (Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var c claims
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...); err != nil {
		return Caller{}, fmt.Errorf("parse token: %w", err)
	}
	return newCaller(c.Subject, c.Role)
}

func newCaller(id, role string) (Caller, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Caller{}, fmt.Errorf("caller id is empty")
	}
	r := Role(strings.ToLower(strings.TrimSpace(role)))
	if r == "" {
		r = RoleRequester
	}
	if !r.valid() {
		return Caller{}, fmt.Errorf("unknown role %q", role)
	}
	return Caller{ID: id, Role: r}, nil
}

// Handler rejects unauthenticated requests with 401.
func (i *Identity) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			caller Caller
			err    error
		)
		if len(i.secret) == 0 {
			caller, err = newCaller(c.GetHeader(HeaderCallerID), c.GetHeader(HeaderCallerRole))
		} else {
			token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
			if !ok || token == "" {
				err = fmt.Errorf("missing bearer token")
			} else {
				caller, err = i.Parse(token)
			}
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerFrom returns the caller set by Identity.
func CallerFrom(c *gin.Context) Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(Caller)
	return caller
}

// RequireRole rejects callers without one of roles with 403.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := CallerFrom(c)
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
