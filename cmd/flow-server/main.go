/*-------------------------------------------------------------------------
 *
 * main.go
 *    NeuronFlow server entry point
 *
 * Wires configuration, database, connectors, and the service layer, then
 * serves the HTTP API with graceful shutdown.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/cmd/flow-server/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/neurondb/NeuronFlow/internal/api"
	"github.com/neurondb/NeuronFlow/internal/collab"
	"github.com/neurondb/NeuronFlow/internal/config"
	"github.com/neurondb/NeuronFlow/internal/connectors"
	"github.com/neurondb/NeuronFlow/internal/db"
	"github.com/neurondb/NeuronFlow/internal/dispatcher"
	"github.com/neurondb/NeuronFlow/internal/eval"
	"github.com/neurondb/NeuronFlow/internal/gateway"
	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/registry"
	"github.com/neurondb/NeuronFlow/internal/workflow"
	"github.com/neurondb/NeuronFlow/pkg/audit"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration load failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
		config.LoadFromEnv(cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	metrics.InitLogging(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Database)
	database, err := db.NewDBWithRetry(connStr, db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, 5, 2*time.Second)
	if err != nil {
		metrics.ErrorWithContext(ctx, "Database connection failed", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	queries := db.NewQueries(database.DB)
	queries.SetConnInfoFunc(database.GetConnInfoString)

	/* Connectors */
	router := connectors.NewRouter()
	for _, cc := range cfg.Connectors {
		connector := connectors.NewHTTPConnector(cc.Name, cc.Endpoint, cc.Token, cc.Model)
		router.Register(connector)
		if cc.Default {
			if err := router.SetDefault(cc.Name); err != nil {
				metrics.WarnWithContext(ctx, "Default connector selection failed", map[string]interface{}{
					"connector": cc.Name,
					"error":     err.Error(),
				})
			}
		}
	}
	if len(router.Names()) == 0 {
		metrics.WarnWithContext(ctx, "No connectors configured; message dispatch will fail", nil)
	}

	/* Service layer */
	evaluator := eval.NewEvaluator(queries, eval.Weights{
		Completion: cfg.Evaluator.Weights.Completion,
		Latency:    cfg.Evaluator.Weights.Latency,
		Quality:    cfg.Evaluator.Weights.Quality,
		Errors:     cfg.Evaluator.Weights.Errors,
	})
	evaluator.Start(cfg.Evaluator.FlushInterval)

	reg := registry.NewRegistry(queries, registry.NewThresholdStrategy(0.6, 10))

	stepDispatcher := dispatcher.NewDispatcher(queries, reg, router, evaluator, dispatcher.RetryPolicy{
		MaxRetries:        cfg.Dispatcher.DefaultMaxRetries,
		InitialDelay:      cfg.Dispatcher.RetryInitialDelay,
		MaxDelay:          cfg.Dispatcher.RetryMaxDelay,
		BackoffMultiplier: cfg.Dispatcher.RetryBackoffMultiplier,
	}, cfg.Dispatcher.DefaultTimeout)

	engine := workflow.NewEngine(queries, stepDispatcher, cfg.Workflow.MaxParallelSteps)
	gw := gateway.NewGateway(queries, router)
	collabMgr := collab.NewManager(queries)

	cleanup := gateway.NewCleanupService(queries, time.Hour, 24*time.Hour)
	cleanup.Start()

	/* HTTP server */
	r := mux.NewRouter()
	r.Use(api.RequestIDMiddleware)
	r.Use(api.CORSMiddleware)
	r.Use(api.LoggingMiddleware)

	handler := api.NewHandler(database, queries, engine, gw, reg, collabMgr, router, audit.NewTrail())
	handler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		metrics.InfoWithContext(ctx, "Server listening", map[string]interface{}{
			"addr":       addr,
			"connectors": router.Names(),
		})
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		metrics.InfoWithContext(ctx, "Shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			metrics.ErrorWithContext(ctx, "Server terminated", err, nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		metrics.ErrorWithContext(ctx, "Server shutdown failed", err, nil)
	}
	cleanup.Stop()
	evaluator.Stop(shutdownCtx)
	metrics.InfoWithContext(ctx, "Server stopped", nil)
}
