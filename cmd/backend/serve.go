package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/web-pentest/agent"
	"github.com/hairizuanbinnoorazman/web-pentest/cmd/backend/handlers"
	"github.com/hairizuanbinnoorazman/web-pentest/database"
	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/metrics"
	"github.com/hairizuanbinnoorazman/web-pentest/storage"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 30 * time.Second

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServer,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logrusLogger := logger.NewLogrusLoggerWithOptions(cfg.Log.Options())
	defer logrusLogger.Close()
	var log logger.Logger = logrusLogger
	log.Info(ctx, "starting server", logger.Fields{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	// Optional durable archive
	var runStore testrun.Store
	var assetStore testrun.AssetStore
	if cfg.Database.Enabled {
		db, err := database.Connect(cfg.Database.Connection())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		defer sqlDB.Close()

		runStore = testrun.NewMySQLStore(db, log)
		assetStore = testrun.NewMySQLAssetStore(db, log)
		log.Info(ctx, "database connected", logger.Fields{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Database,
		})
	}

	// Optional report storage
	var blobStorage storage.BlobStorage
	if cfg.Storage.Enabled {
		blobStorage, err = storage.New(ctx, cfg.Storage.Config)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		log.Info(ctx, "storage initialized", logger.Fields{
			"type": cfg.Storage.Type,
		})
	}

	registry := testrun.NewRegistry(runStore, log)
	recovered, err := registry.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted test runs: %w", err)
	}
	if recovered > 0 {
		log.Warn(ctx, "marked interrupted test runs as failed", logger.Fields{
			"count": recovered,
		})
	}
	registry.StartCleanup(cfg.Registry.CleanupInterval, cfg.Registry.Retention)
	defer registry.StopCleanup()

	planner, err := agent.NewPlanner(ctx, cfg.Agent, log)
	if err != nil {
		return fmt.Errorf("failed to initialize planner: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	exporter, err := newExporter(cfg.Tracker, log)
	if err != nil {
		return fmt.Errorf("failed to initialize issue tracker: %w", err)
	}

	orchestrator := agent.NewOrchestrator(cfg.Agent, registry, planner, blobStorage, assetStore, log)
	orchestrator.SetObserver(m)
	if exporter != nil && cfg.Tracker.AutoExport {
		orchestrator.SetFinishHook(func(ctx context.Context, run *testrun.TestRun) {
			if run.Status != testrun.StatusCompleted || len(run.Findings) == 0 {
				return
			}
			if _, err := exporter.Export(ctx, run); err != nil {
				log.Error(ctx, "automatic issue export failed", logger.Fields{
					"test_run_id": run.ID.String(),
					"error":       err.Error(),
				})
			}
		})
	}

	log.Info(ctx, "orchestrator initialized", logger.Fields{
		"planner":     cfg.Agent.Planner,
		"max_workers": cfg.Agent.MaxConcurrentWorkers,
		"queue_size":  cfg.Agent.QueueSize,
	})

	router := newRouter(cfg, routerDeps{
		orchestrator: orchestrator,
		registry:     registry,
		storage:      blobStorage,
		exporter:     exporter,
		metrics:      m,
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orchestrator.Start(gctx)
		<-gctx.Done()
		orchestrator.Stop()
		return nil
	})
	g.Go(func() error {
		log.Info(ctx, "server listening", logger.Fields{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info(context.Background(), "server stopped", nil)
	return nil
}

type routerDeps struct {
	orchestrator *agent.Orchestrator
	registry     *testrun.Registry
	storage      storage.BlobStorage
	exporter     *issuetracker.Exporter
	metrics      *metrics.Metrics
}

func newRouter(cfg *Config, deps routerDeps, log logger.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(handlers.RequestLogger(log))

	// Public endpoints
	router.HandleFunc("/health", handlers.NewHealthHandler(deps.registry)).Methods("GET")
	router.Handle("/metrics", deps.metrics.Handler()).Methods("GET")

	testHandler := handlers.NewTestRunHandler(deps.orchestrator, deps.registry, deps.storage, log)
	testHandler.SetPollInterval(cfg.Server.SSEPollInterval)

	var exporter handlers.FindingExporter
	if deps.exporter != nil {
		exporter = deps.exporter
	}
	issueHandler := handlers.NewIssueHandler(deps.registry, exporter, log)

	authMiddleware := handlers.NewAuthMiddleware(cfg.Auth.Tokens, log)
	if !authMiddleware.Enabled() {
		log.Warn(context.Background(), "no API tokens configured, authentication disabled", nil)
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMiddleware.Handler)
	apiRouter.Use(handlers.WriteScopeMiddleware)

	var createHandler http.Handler = http.HandlerFunc(testHandler.Create)
	if cfg.RateLimit.Enabled {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		createHandler = handlers.RateLimit(limiter, log)(createHandler)
	}

	apiRouter.Handle("/tests", createHandler).Methods("POST")
	apiRouter.HandleFunc("/tests", testHandler.List).Methods("GET")
	apiRouter.HandleFunc("/tests/{id}", testHandler.GetByID).Methods("GET")
	apiRouter.HandleFunc("/tests/{id}", testHandler.Cancel).Methods("DELETE")
	apiRouter.HandleFunc("/tests/{id}/events", testHandler.Events).Methods("GET")
	apiRouter.HandleFunc("/tests/{id}/report", testHandler.Report).Methods("GET")
	apiRouter.HandleFunc("/tests/{id}/issues", issueHandler.Export).Methods("POST")

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         cfg.CORS.MaxAge,
	})(router)
}
