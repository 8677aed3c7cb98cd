// Package api exposes a Tally ledger over HTTP with fiber.
//
// Callers authenticate with "Authorization: Bearer <key>"; the key ring maps
// SHA-256 digests of keys to principals. Mutating routes honour an
// Idempotency-Key header and every response carries an X-Request-ID.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/xraph/tally"
)

// DefaultBasePath prefixes all routes.
const DefaultBasePath = "/tally"

var errNoLedger = errors.New("api: ledger is required")

// Server is the HTTP surface of a ledger.
type Server struct {
	app      *fiber.App
	handler  *Handler
	keys     *KeyRing
	logger   *slog.Logger
	basePath string
	idem     IdempotencyStore
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath overrides DefaultBasePath.
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithIdempotencyStore replaces the in-memory idempotency store.
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(s *Server) { s.idem = store }
}

// New builds a Server for l. Requests are authenticated against keys.
func New(l *tally.Ledger, keys *KeyRing, opts ...Option) (*Server, error) {
	if l == nil {
		return nil, errNoLedger
	}
	s := &Server{
		handler:  &Handler{Ledger: l},
		keys:     keys,
		logger:   slog.Default(),
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keys == nil {
		s.keys = NewKeyRing(nil)
	}
	if s.idem == nil {
		s.idem = NewMemoryIdempotency(24 * time.Hour)
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(s.logger),
	})
	s.app.Use(RequestID(), Logger(s.logger))
	s.routes(s.app.Group(s.basePath))
	return s, nil
}

func (s *Server) routes(r fiber.Router) {
	h := s.handler

	// Public
	r.Get("/owner", h.Owner)
	r.Get("/price", h.Price)
	r.Get("/balances/:principal", h.Balance)
	r.Get("/solvency", h.Solvency)

	// Authenticated
	auth := Protected(s.keys)
	idem := Idempotency(s.idem, s.logger)
	r.Post("/top-ups", auth, idem, h.TopUp)
	r.Post("/usage", auth, idem, h.Usage)
	r.Put("/price", auth, idem, h.UpdatePrice)
	r.Post("/withdrawals", auth, idem, h.Withdraw)
	r.Get("/entries", auth, h.Entries)
}

// App returns the fiber app, for mounting extra routes or testing.
func (s *Server) App() *fiber.App { return s.app }

// Keys returns the key ring.
func (s *Server) Keys() *KeyRing { return s.keys }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr, "base_path", s.basePath)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
