// Command tallyd serves a Tally ledger over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/internal/config"
	kafkahook "github.com/xraph/tally/kafka_hook"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/pgxstore"
	"github.com/xraph/tally/types"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (default: ./.env if present)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger, *envFile); err != nil {
		logger.Error("tallyd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, envFile string) error {
	var files []string
	if envFile != "" {
		if err := config.MustExist(envFile); err != nil {
			return err
		}
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if !cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	price, err := types.Parse(cfg.InitialPrice, cfg.Currency)
	if err != nil {
		return errors.Join(tally.ErrInvalidConfig, err)
	}

	opts := []tally.Option{
		tally.WithLogger(logger),
		tally.WithAppID(cfg.AppID),
		tally.WithTreasuryMode(tally.TreasuryMode(cfg.TreasuryMode)),
		tally.WithWallet(payout.Unbounded()),
		tally.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.DefaultRegisterer))),
		tally.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
	}
	if cfg.StrictPricing {
		opts = append(opts, tally.WithStrictPricing())
	}
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkahook.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, tally.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(logger))))
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	l, err := tally.New(s, types.NewPrincipal(cfg.Administrator), price, opts...)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	logger.Warn("no custody wallet configured; top-ups and withdrawals move no external funds")

	srv, err := api.New(l, api.NewKeyRing(cfg.APIKeys),
		api.WithLogger(logger),
		api.WithBasePath(cfg.BasePath),
	)
	if err != nil {
		_ = l.Stop()
		return err
	}
	if cfg.MetricsPath != "" {
		srv.App().Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}
	srv.App().Get("/healthz", func(c *fiber.Ctx) error {
		if err := s.Ping(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if srv.Keys().Len() == 0 {
		logger.Warn("no API keys configured; authenticated routes will reject every request")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		_ = l.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := l.Stop(); err != nil {
		return err
	}
	logger.Info("tallyd stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using the in-memory store")
		return memory.New(), nil
	}
	s, err := pgxstore.Connect(ctx, cfg.DatabaseURL, pgxstore.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return s, nil
}

// auditLog writes audit events to the structured log.
func auditLog(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, e *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.String("resource_id", e.ResourceID),
			slog.String("actor", e.Actor),
			slog.String("outcome", e.Outcome),
			slog.String("severity", e.Severity),
			slog.Any("metadata", e.Metadata),
		)
		return nil
	}
}
