package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mentorlane/mentorlane/internal/identity"
)

const identityContextKey = "caller_identity"

// AuthRequired resolves the caller from the bearer token and stores the
// verified identity on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		caller, err := s.verifier.Verify(token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(identityContextKey, caller)
		c.Next()
	}
}

// CronAuthRequired gates scheduled-job endpoints with the shared secret.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)
		token := bearerToken(c)
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// BookingCreateRateLimit throttles creation per learner. Runs after
// AuthRequired so the caller identity is available.
func (s *Server) BookingCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerIdentity(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !s.limiter.Allow(c.Request.Context(), caller.UserID) {
			AbortWithError(c, ErrTooManyCreates)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func callerIdentity(c *gin.Context) (identity.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return identity.Identity{}, false
	}
	caller, ok := value.(identity.Identity)
	return caller, ok
}
