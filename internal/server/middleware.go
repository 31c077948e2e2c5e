package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErr "judged/pkg/errors"
	"judged/pkg/utils/contextkey"
	"judged/pkg/utils/logger"
)

// TokenHeader carries the hex sha256 digest of the shared token.
const TokenHeader = "X-Judge-Server-Token"

// Auth rejects any request whose token digest does not match before
// the handler does any work.
func Auth(token string) gin.HandlerFunc {
	sum := sha256.Sum256([]byte(token))
	expected := hex.EncodeToString(sum[:])
	return func(c *gin.Context) {
		got := c.GetHeader(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			writeError(c, appErr.New(appErr.TokenVerificationFailed))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID stamps every request with an id used in log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		ctx := contextkey.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// RequestLogger logs one line per request with latency and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
