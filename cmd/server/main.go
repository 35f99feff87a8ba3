package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/api"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/auth"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/config"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/engine"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/logging"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/mcp"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/registry"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/repository"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/tls"
)

func main() {
	ctx := context.Background()

	// Initialize logging
	logger := logging.NewLogger()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}
	logger.Info("Configuration loaded: environment=%s workers=%d queue=%d config_file=%s",
		cfg.Environment, cfg.Engine.Workers, cfg.Engine.QueueSize, viper.ConfigFileUsed())

	logger.Info("Starting Pipeline Orchestration Service")

	// Initialize store: Postgres in normal operation, in-memory for dev
	// bypass so the service boots without a database.
	var store repository.Store
	isDev := strings.ToUpper(cfg.Environment) == "DEV" && cfg.DevModeBypass
	if isDev {
		logger.Warn("Dev mode bypass active: using in-memory store")
		store = repository.NewMemoryStore()
	} else {
		dbPool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database: %v", err)
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer dbPool.Close()

		pgStore := repository.NewPostgresStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure schema: %v", err)
			log.Fatalf("Schema initialization failed: %v", err)
		}
		store = pgStore
		logger.Info("Database connected")
	}

	// Initialize the module registry and hydrate it from the module catalog.
	reg := registry.New()
	modules, err := store.ListModules(ctx)
	if err != nil {
		logger.Error("Failed to list modules: %v", err)
		log.Fatalf("Module catalog load failed: %v", err)
	}
	for _, info := range modules {
		if err := reg.Register(*info, registry.NewHTTPCapability(info.Endpoint)); err != nil {
			logger.Error("Failed to register module %s: %v", info.ID, err)
		}
	}
	logger.Info("Module registry hydrated: modules=%d", len(modules))

	// Initialize the orchestration engine.
	eng, err := engine.New(store, reg, engine.NewLogSink(logger), logger, engine.Options{
		Workers:        cfg.Engine.Workers,
		QueueSize:      cfg.Engine.QueueSize,
		StepTimeout:    cfg.StepTimeout(),
		MaxStepRetries: cfg.Engine.MaxStepRetries,
		RetryDelay:     cfg.RetryDelay(),
	})
	if err != nil {
		logger.Error("Failed to initialize engine: %v", err)
		log.Fatalf("Engine initialization failed: %v", err)
	}
	eng.Start(ctx)

	// Create Echo server
	e := echo.New()

	// Middleware
	e.HTTPErrorHandler = api.NewHTTPErrorHandler()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("workforce-ai-saas"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to initialize auth: %v", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Health check, unauthenticated
	e.GET("/health", echo.WrapHandler(api.HealthHandler()))

	// Mount REST API handlers under /api/v1 behind auth middleware
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer := api.NewServer(eng)
	apiServer.RegisterRoutes(apiGroup)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(eng)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting: address=%s tls=%v", addr, cfg.TLS.Enable)
		if cfg.TLS.Enable {
			// ensure certificate exists if requested
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert: %v", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}

		// Let in-flight runs reach a step boundary before exiting.
		if err := eng.Stop(ctx); err != nil {
			logger.Error("Engine shutdown error: %v", err)
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
