package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"grana/internal/auth"
	"grana/internal/backend"
	"grana/internal/config"
	apphttp "grana/internal/http"
	"grana/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("starting grana server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Assemble the document store.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("backend cleanup failed", log.FieldError, err.Error())
			}
		}()
	}

	// Identity provider. With AUTH_DISABLED every request runs as the
	// development identity.
	var verifier auth.TokenVerifier
	if cfg.AuthDisabled {
		logger.Warn("authentication disabled, all requests use the development identity")
	} else {
		verifier, err = auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID,
			cfg.FirebaseCredentialsJSON, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("failed to initialize Firebase auth", log.FieldError, err.Error())
			os.Exit(1)
		}
		logger.Info("Firebase auth initialized", "project_id", cfg.FirebaseProjectID)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:          result.Store,
		Notifier:       result.Notifier,
		AuthMiddleware: auth.Middleware(verifier, logger.WithComponent(log.ComponentAuth)),
		Logger:         logger,
	})

	// Bridge local change events to the broker and consume remote ones.
	if result.Bridge != nil {
		bridgeSub := result.Bridge.Start(ctx)
		defer bridgeSub.Cancel()

		go func() {
			if err := result.AMQP.ConsumeChanges(ctx, result.Bridge.HandleRemote); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("change consumption stopped", log.FieldError, err.Error())
				}
			}
		}()
	}

	// Graceful shutdown handling
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("listening", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
