package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"logicflow/pkg/auth"
	"logicflow/pkg/config"
	"logicflow/pkg/db"
	"logicflow/services/codegen"
	"logicflow/services/flow"
	"logicflow/services/quicktest"
	"logicflow/services/security"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})
	slog.SetDefault(slog.New(logHandler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := flow.LoadCatalog()
	if err != nil {
		return err
	}
	policy := security.DefaultPolicy().WithAllowedImports(cfg.Security.ExtraAllowedImports...)
	policy.MaxComplexity = cfg.Security.MaxComplexity
	validator := security.NewValidator(policy)

	var (
		generator *codegen.Generator
		store     quicktest.Store
		instances quicktest.InstanceSource
	)
	if cfg.Database.URL != "" {
		pool, err := db.Connect(ctx, db.Config{
			URI:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime(),
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		// Initialize database schema and seed data
		if err := quicktest.InitDB(ctx, pool); err != nil {
			return err
		}
		generator, err = codegen.NewPostgresGenerator(ctx, pool, catalog, validator)
		if err != nil {
			return err
		}
		store = quicktest.NewRepository(pool)
		instances = quicktest.NewInstanceRepository(pool)
	} else {
		slog.Warn("DATABASE_URL is not set, using in-memory stores")
		generator = codegen.NewGenerator(catalog, validator, codegen.NewMemoryStore())
		store = quicktest.NewMemoryStore()
		instances = quicktest.NewMemoryInstances(quicktest.SampleInstance())
	}

	orchestrator := quicktest.NewOrchestrator(generator, instances, store, nil, quicktest.Defaults{
		InitialCapital: cfg.InitialCapital(),
		CommissionRate: cfg.CommissionRate(),
		Slippage:       cfg.Slippage(),
		Lookback:       cfg.Lookback(),
		Frequency:      cfg.QuickTest.Frequency,
		Benchmark:      cfg.QuickTest.Benchmark,
	})
	engine := quicktest.NewHTTPEngine(cfg.Engine.URL, cfg.EngineTimeout())
	queue := quicktest.NewWorkerQueue(engine, orchestrator, cfg.QuickTest.QueueSize)
	orchestrator.SetQueue(queue)

	// setup router
	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	codegen.NewService(generator, orchestrator).LoadRoutes(apiRouter)
	quicktest.NewService(orchestrator).LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", auth.Header}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: corsHandler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		queue.Run(gctx, cfg.QuickTest.Workers)
		return nil
	})
	g.Go(func() error {
		return orchestrator.RunSweeper(gctx, cfg.SweepInterval(), cfg.RunningTimeout())
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}
