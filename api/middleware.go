package api

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/xraph/tally/types"
)

// Header and locals keys.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"

	localPrincipal = "principal"
	localRequestID = "request_id"
)

// RequestID tags every request with an ID. A valid UUID sent by the client
// is kept; anything else is replaced.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderRequestID)
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.NewString()
		}
		c.Locals(localRequestID, rid)
		c.Set(HeaderRequestID, rid)
		return c.Next()
	}
}

// Logger logs one line per request.
func Logger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusFor(err)
		}
		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
			"request_id", requestID(c),
		)
		return err
	}
}

// Protected resolves the caller from "Authorization: Bearer <key>".
func Protected(keys *KeyRing) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing API key")
		}

		scheme, key, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || key == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		principal, ok := keys.Lookup(key)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}

		c.Locals(localPrincipal, principal)
		return c.Next()
	}
}

// Idempotency replays the first successful response for a principal and
// Idempotency-Key pair. Requests without the header pass through. A second
// request arriving while the first is still running gets 409, and reusing a
// key with another method, path or body gets 422.
func Idempotency(store IdempotencyStore, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderIdempotencyKey)
		if key == "" {
			return c.Next()
		}
		scoped := caller(c).String() + "\x00" + key

		cached, state := store.Begin(scoped, fingerprint(c))
		switch state {
		case StateDone:
			logger.Debug("idempotency hit", "key", key, "request_id", requestID(c))
			c.Set(HeaderIdempotencyHit, "true")
			c.Set(fiber.HeaderContentType, cached.ContentType)
			return c.Status(cached.Status).Send(cached.Body)
		case StateInFlight:
			return fiber.NewError(fiber.StatusConflict, "request with this idempotency key is in progress")
		case StateMismatch:
			logger.Warn("idempotency key reused for a different request", "key", key, "request_id", requestID(c))
			return fiber.NewError(fiber.StatusUnprocessableEntity, "idempotency key was used for a different request")
		}

		if err := c.Next(); err != nil {
			store.Abort(scoped)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusBadRequest {
			store.Abort(scoped)
			return nil
		}
		store.Complete(scoped, Response{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		})
		return nil
	}
}

// fingerprint hashes the method, path and body a key is bound to.
func fingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func caller(c *fiber.Ctx) types.Principal {
	p, _ := c.Locals(localPrincipal).(types.Principal)
	return p
}

func requestID(c *fiber.Ctx) string {
	rid, _ := c.Locals(localRequestID).(string)
	return rid
}
