package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/posledger/internal/domain/order"
	"github.com/xenking/posledger/internal/domain/payment"
	"github.com/xenking/posledger/internal/domain/shift"
	"github.com/xenking/posledger/internal/handler"
	"github.com/xenking/posledger/internal/storage/postgres"
	"github.com/xenking/posledger/pkg/health"
	"github.com/xenking/posledger/pkg/httpmiddleware"
)

const serviceName = "posledger"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.New(pool, m.TracerProvider())

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", cfg.Health.CheckTimeout, health.PingCheck(db))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(cfg.Health.MaxGoroutines))
	healthSvc.SetReady(true)

	// Domain services.
	orders := order.NewService(postgres.NewOrderStore(db), postgres.NewMenuRepository(pool))
	payments, err := payment.NewLedger(postgres.NewPaymentStore(db), m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create payment ledger")
	}
	shifts := shift.NewLedger(postgres.NewShiftStore(db))

	// HTTP handlers.
	authn := handler.NewAuthenticator(
		postgres.NewAPIKeyRepository(pool),
		[]byte(cfg.APIKeyPepper),
		[]byte(cfg.JWTSecret),
	)
	if cfg.JWTSecret == "" {
		lg.Info("Bearer tokens disabled, only api keys are accepted")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orders, payments, shifts).Register(mux, authn.Authenticate())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
