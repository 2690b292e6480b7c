// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	// ContextAdminKey is the gin context key marking an authenticated admin caller.
	ContextAdminKey = "adminCaller"
	// HeaderAdminToken carries a static admin API token as an alternative to JWT.
	HeaderAdminToken = "X-Admin-Token"
	// HeaderRequestID carries the request ID assigned by RequestID middleware.
	HeaderRequestID = "X-Request-ID"

	errMissingCredentials = "missing admin credentials"
	errInvalidCredentials = "invalid admin credentials"
)

// RequestID assigns a request ID to every request and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(string(logger.RequestIDKey), requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		log.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// IPRateLimiter manages per-IP rate limiters.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	limiter, ok := i.limiters.Load(ip)
	if !ok {
		newLimiter := rate.NewLimiter(i.rate, i.burst)
		limiter, _ = i.limiters.LoadOrStore(ip, newLimiter)
	}
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := i.getLimiter(ip)

		if !limiter.Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// AdminRequired returns middleware that authenticates admin callers.
// Two credential forms are accepted: a Bearer JWT carrying role=admin signed
// with the configured secret, or a static token in X-Admin-Token compared
// against the configured bcrypt hash.
func AdminRequired(cfg config.AdminAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rawToken, ok := extractBearerToken(c.GetHeader("Authorization")); ok {
			if err := verifyAdminJWT(rawToken, cfg.GetAdminJWTSecret()); err != nil {
				abortUnauthorized(c, errInvalidCredentials)
				return
			}
			c.Set(ContextAdminKey, true)
			c.Next()
			return
		}

		if staticToken := c.GetHeader(HeaderAdminToken); staticToken != "" {
			if err := verifyAdminToken(staticToken, cfg.GetAdminTokenHash()); err != nil {
				abortUnauthorized(c, errInvalidCredentials)
				return
			}
			c.Set(ContextAdminKey, true)
			c.Next()
			return
		}

		abortUnauthorized(c, errMissingCredentials)
	}
}

// IsAdmin reports whether the current request was authenticated as admin.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextAdminKey)
}

func verifyAdminJWT(rawToken, secret string) error {
	if secret == "" {
		return errors.New("admin jwt not configured")
	}

	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}

	role, _ := claims["role"].(string)
	if role != "admin" {
		return errors.New("missing admin role")
	}

	return nil
}

func verifyAdminToken(token, hash string) error {
	if hash == "" {
		return errors.New("admin token not configured")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
}

func extractBearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
