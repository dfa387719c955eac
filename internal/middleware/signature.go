package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"snapify/internal/security"
)

const (
	signatureMaxAge  = 5 * time.Minute
	signatureMaxSkew = 2 * time.Minute

	// Signed routes carry small JSON bodies.
	MaxSignedBody = 64 << 10
)

// NonceStore remembers nonces; Remember reports false for one already seen.
type NonceStore interface {
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisNonces struct {
	client *redis.Client
}

func NewRedisNonces(client *redis.Client) *RedisNonces {
	return &RedisNonces{client: client}
}

func (n *RedisNonces) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return n.client.SetNX(ctx, key, "1", ttl).Result()
}

// Signature verifies the device HMAC on a request. It must run after Auth,
// which provides the device id the signature is bound to. With enabled
// false it is a pass-through.
func Signature(enabled bool, secret string, nonces NonceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		date, nonce, signature, err := security.SignatureHeaders(c.Request.Header)
		if err != nil {
			abort(c, http.StatusUnauthorized, "SIGNATURE_REQUIRED", err.Error())
			return
		}

		requestTime, err := time.Parse(time.RFC3339, date)
		if err != nil {
			abort(c, http.StatusUnauthorized, "SIGNATURE_INVALID", "invalid signature date")
			return
		}
		if time.Since(requestTime) > signatureMaxAge || time.Until(requestTime) > signatureMaxSkew {
			abort(c, http.StatusUnauthorized, "SIGNATURE_EXPIRED", "signature date out of range")
			return
		}

		claims, ok := AccessClaims(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxSignedBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				abort(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large")
				return
			}
			abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		req := security.SignedRequest{
			DeviceID: claims.DeviceID,
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Query:    c.Request.URL.RawQuery,
			Body:     body,
			Date:     date,
			Nonce:    nonce,
		}
		if !security.VerifySignature(secret, req, signature) {
			abort(c, http.StatusUnauthorized, "SIGNATURE_INVALID", "signature mismatch")
			return
		}

		fresh, err := nonces.Remember(c.Request.Context(), fmt.Sprintf("sig:%s:%s", claims.DeviceID, nonce), signatureMaxAge)
		if err != nil {
			abort(c, http.StatusServiceUnavailable, "INTERNAL_ERROR", "nonce store unavailable")
			return
		}
		if !fresh {
			abort(c, http.StatusUnauthorized, "SIGNATURE_REPLAYED", "nonce already used")
			return
		}
		c.Next()
	}
}
