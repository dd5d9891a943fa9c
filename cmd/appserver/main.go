// Command appserver runs the case practice API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/httpapi"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage/postgres"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/config"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/middleware"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/billing"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/database"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/email"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/llm"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/migrations"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("appserver").WithError(err).Fatal("load configuration")
	}
	log := logger.New(cfg.Logging).Named("appserver")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("appserver stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	stores, closeDB, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeDB()

	deps, closeCache, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	application, err := app.New(stores, deps, log.Named("app"))
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, log.Named("ratelimit"))
	if err := application.Attach(limiter); err != nil {
		return err
	}

	handler := httpapi.NewHandler(application, httpapi.Options{
		Auth: middleware.AuthConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
		Log:            log.Named("http"),
	})

	if err := application.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return application.Stop(shutdownCtx)
}

// openStores connects Postgres when a DSN is configured and falls back to the
// in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.DSN == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return app.Stores{}, func() {}, nil
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if cfg.Migrate {
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		log.Info("database migrations applied")
	}
	store := postgres.New(db)
	return app.Stores{
		Users:         store,
		Drills:        store,
		Simulations:   store,
		Subscriptions: store,
		Feedback:      store,
	}, func() { db.Close() }, nil
}

// buildDeps configures the optional integrations. Each one is skipped with a
// warning when its credentials are missing.
func buildDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Deps, func(), error) {
	deps := app.Deps{CacheTTL: cfg.Redis.TTL, Maintenance: &cfg.Maintenance}
	closeCache := func() {}

	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return app.Deps{}, nil, err
		}
		deps.Cache = rc
		closeCache = func() { _ = rc.Close() }
	} else {
		log.Warn("REDIS_URL not set; using the in-process cache")
	}

	simCfg, err := cfg.SimulationTuning()
	if err != nil {
		return app.Deps{}, nil, err
	}
	deps.Simulation = &simCfg

	if cfg.OpenAI.APIKey != "" {
		client, err := llm.New(llm.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			return app.Deps{}, nil, err
		}
		deps.LLM = client
	} else {
		log.Warn("OPENAI_API_KEY not set; LLM evaluation disabled")
	}

	if cfg.Stripe.SecretKey != "" {
		client, err := billing.New(billing.Config{
			SecretKey:  cfg.Stripe.SecretKey,
			PriceID:    cfg.Stripe.PriceID,
			BaseURL:    cfg.Stripe.BaseURL,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		})
		if err != nil {
			return app.Deps{}, nil, err
		}
		deps.Billing = client
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; billing disabled")
	}
	if cfg.Stripe.WebhookSecret != "" {
		deps.Webhooks = billing.NewVerifier(cfg.Stripe.WebhookSecret)
	} else {
		log.Warn("STRIPE_WEBHOOK_SECRET not set; webhooks disabled")
	}

	if cfg.Resend.APIKey != "" {
		client, err := email.New(email.Config{
			APIKey:  cfg.Resend.APIKey,
			From:    cfg.Resend.From,
			BaseURL: cfg.Resend.BaseURL,
		})
		if err != nil {
			return app.Deps{}, nil, err
		}
		deps.Email = client
	} else {
		log.Warn("RESEND_API_KEY not set; email disabled")
	}

	return deps, closeCache, nil
}
