package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
)

func main() {
	cfg, err := LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	logger, err := newLogger(os.Stdout, cfg.Log)
	if err != nil {
		log.Fatal("invalid log configuration", "err", err)
	}
	ctx := context.Background()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("could not open store", "backend", cfg.Store.Backend, "err", err)
	}
	defer store.Close()
	logger.Info("store ready",
		"backend", cfg.Store.Backend,
		"driver", cfg.Store.Driver,
		"enforce_unique_titles", cfg.Store.EnforceUniqueTitles,
	)

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      newRouter(cfg, store, logger, metrics),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	go func() {
		logger.Info("server is listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}

	logger.Info("server stopped")
}

// newRouter wires the todo API behind the auth and logging middleware.
// The metrics endpoint is served outside auth.
func newRouter(cfg *Config, store Store, logger *log.Logger, metrics *Metrics) http.Handler {
	api := http.NewServeMux()
	NewHandler(store, logger, metrics).Routes(api)

	var apiHandler http.Handler = api
	if len(cfg.Auth.APIKeys) > 0 {
		apiHandler = authMiddleware(apiKeySet(cfg.Auth.APIKeys))(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metrics != nil {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	return loggingMiddleware(logger, metrics)(mux)
}
