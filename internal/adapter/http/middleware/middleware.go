package middleware

import (
	"net/http"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries a delegated API key credential.
	HeaderAPIKey = "X-API-Key"

	// Context keys set by Authenticate.
	CtxUserID      = "user_id"
	CtxAuthMethod  = "auth_method"
	CtxPermissions = "permissions"
	CtxKeyID       = "api_key_id"

	// Auth methods.
	AuthMethodBearer = "bearer"
	AuthMethodAPIKey = "api_key"
)

// Authenticate resolves the caller from either a bearer token or an API key.
// A bearer token identifies the account owner and grants every permission;
// an API key grants only the permissions chosen at issuance. When both are
// present the bearer token wins.
func Authenticate(tokenSvc ports.TokenService, keySvc ports.APIKeyService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Error(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			claims, err := tokenSvc.Validate(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				response.Error(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxAuthMethod, AuthMethodBearer)
			c.Set(CtxPermissions, domain.AllPermissions())
			c.Next()
			return
		}

		if secret := c.GetHeader(HeaderAPIKey); secret != "" {
			identity, err := keySvc.Validate(c.Request.Context(), secret)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			c.Set(CtxUserID, identity.UserID)
			c.Set(CtxAuthMethod, AuthMethodAPIKey)
			c.Set(CtxPermissions, identity.Permissions)
			c.Set(CtxKeyID, identity.KeyID)
			c.Next()
			return
		}

		response.Error(c, apperror.ErrUnauthorized())
		c.Abort()
	}
}

// RequirePermission rejects callers whose credential does not grant p.
// Distinguishes "who are you" (401, handled by Authenticate) from "you may
// not do this" (403).
func RequirePermission(p domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get(CtxPermissions)
		if !exists {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}
		granted, ok := perms.([]domain.Permission)
		if !ok {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}
		for _, g := range granted {
			if g == p {
				c.Next()
				return
			}
		}
		response.Error(c, apperror.ErrForbidden(string(p)))
		c.Abort()
	}
}

// RequireBearer restricts a route to bearer-token callers. Key management
// stays owner-only: an API key must never mint or revoke other keys.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if method, _ := c.Get(CtxAuthMethod); method != AuthMethodBearer {
			response.Error(c, apperror.ErrForbidden("owner credentials"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated user's ID from the context.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestID attaches a request ID to the context and response headers,
// honoring one supplied by the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
