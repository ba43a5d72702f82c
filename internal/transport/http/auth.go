package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"skillyhead-service/internal/domain"
)

const identityKey = "identity"

// Claims carry the session id as the token id; the identity itself stays in
// the session store so a client switch takes effect without a new token.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the session of id and its expiry.
func (t *TokenIssuer) Issue(id domain.Identity) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := &Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.SessionID,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return signed, exp, err
}

// SessionID verifies tokenStr and returns the session it names.
func (t *TokenIssuer) SessionID(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", errors.New("invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.ID, nil
}

// resolve turns a bearer token into the live identity of its session.
func (s *Server) resolve(ctx context.Context, tokenStr string) (domain.Identity, error) {
	sid, err := s.tokens.SessionID(tokenStr)
	if err != nil {
		return domain.Identity{}, domain.NewError(domain.ErrAuth, "%s", err.Error())
	}
	return s.core.Identity.ResolveSession(ctx, sid)
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// authenticate ensures each request carries a live session.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		id, err := s.resolve(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			s.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identity(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(domain.Identity)
	return v
}

// loginLimiter throttles login attempts per remote address.
type loginLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	byKey map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLoginLimiter(perSecond float64, burst int) *loginLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &loginLimiter{every: rate.Limit(perSecond), burst: burst, byKey: make(map[string]*limiterEntry)}
}

func (l *loginLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byKey[key]
	if !ok {
		if len(l.byKey) > 10000 {
			l.prune(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.byKey[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *loginLimiter) prune(now time.Time) {
	for k, e := range l.byKey {
		if now.Sub(e.seen) > 10*time.Minute {
			delete(l.byKey, k)
		}
	}
}
