package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/agriconnect/internal/config"
	"github.com/Dan9191/agriconnect/internal/handler"
	"github.com/Dan9191/agriconnect/internal/metrics"
	"github.com/Dan9191/agriconnect/internal/password"
	"github.com/Dan9191/agriconnect/internal/repository"
	"github.com/Dan9191/agriconnect/internal/service"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	cmd := parseCommand(os.Args[1:])
	if cmd == commandHealthcheck {
		if err := healthcheck(cfg.Port); err != nil {
			logger.Errorf("Health check failed: %v", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := repository.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	repo := repository.NewRepository(db, cfg.DBDriver)
	if err := repo.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize schema: %v", err)
	}
	if version, err := repo.SchemaVersion(ctx); err == nil {
		logger.WithField("version", version).Info("Database schema is up to date")
	}
	if cmd == commandMigrate {
		return
	}

	if err := serve(ctx, cfg, repo, logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func serve(ctx context.Context, cfg *config.Config, repo *repository.Repository, logger *logrus.Logger) error {
	scheme, err := password.ParseScheme(cfg.HashScheme)
	if err != nil {
		return err
	}
	hasher, err := password.NewHasher(scheme)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize layers
	svc := service.NewService(repo, hasher, logger, metrics.NewCollector(reg))
	h := handler.NewHandler(svc, repo, logger)
	r := handler.NewRouter(h, metrics.Handler(reg), logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("scheme", scheme).Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func healthcheck(port string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/healthz", port))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
