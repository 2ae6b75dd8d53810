package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callerKey = "caller"

// TokenVerifier resolves a bearer token into a caller
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (models.Caller, error)
}

// authMiddleware requires a valid bearer token and stores the caller on the context
func authMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"details": "missing bearer token",
			})
			return
		}

		caller, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			status, _ := statusFor(err)
			if status != http.StatusUnauthorized {
				// revocation store unreachable
				util.GetLogger().Error("Token verification failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth_unavailable"})
				return
			}
			respondError(c, err)
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// callerFrom returns the caller set by authMiddleware
func callerFrom(c *gin.Context) (models.Caller, error) {
	v, ok := c.Get(callerKey)
	if !ok {
		return models.Caller{}, errors.New("no authenticated caller")
	}
	caller, ok := v.(models.Caller)
	if !ok {
		return models.Caller{}, errors.New("malformed caller")
	}
	return caller, nil
}

// requestLogger logs each request with zap
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		util.GetLogger().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
