/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the statement ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, YAML, .env, environment)
  3. Initialize the store selected by the database driver
  4. Create the user and ledger services, start the ledger auditor
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database
  -driver  sqlite | mysql | memory, overrides config

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the auditor
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ./server -db="./data/ledger.db"

  # Run against MySQL
  JWT_SECRET=dev LEDGER_MYSQL_DB=ledger ./server -driver=mysql

SEE ALSO:
  - config/config.go: Configuration sources and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/gormstore/gormstore.go: Backends
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/warp/statement-ledger/api"
	"github.com/warp/statement-ledger/config"
	"github.com/warp/statement-ledger/ledger"
	ledgerstore "github.com/warp/statement-ledger/ledger/store"
	"github.com/warp/statement-ledger/logging"
	"github.com/warp/statement-ledger/store/gormstore"
	"github.com/warp/statement-ledger/store/sqlite"
	"github.com/warp/statement-ledger/users"
)

// backend is what every driver provides: statements and users side by side.
type backend struct {
	statements ledger.Store
	owners     ledger.UserLister
	users      users.Directory
	health     api.Pinger
	closer     io.Closer
}

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	driver := flag.String("driver", "", "Database driver: sqlite, mysql or memory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}

	log := logging.New(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		stop()
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves until ctx is done or the listener fails. Shutdown, the auditor
// and the store are always released before it returns.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Initialize store
	b, err := openBackend(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", cfg.Database.Driver, err)
	}
	defer b.closer.Close()

	// Initialize services
	tokens := users.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	userService := users.NewService(b.users, tokens, log)
	ledgerService := ledger.NewService(b.users, b.statements, ledger.NewKeyedLocker(), log)

	auditor := ledger.NewAuditor(b.statements, b.owners, cfg.Audit.Interval, log)
	auditor.Start()
	defer auditor.Stop()

	handler := api.NewHandler(ledgerService, userService, tokens, log)
	handler.Health = b.health

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msgf("Server starting on http://localhost:%d/api/v1", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return nil
	}

	log.Info().Msg("Server stopped")
	return nil
}

func openBackend(cfg config.DatabaseConfig) (*backend, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		s, err := gormstore.NewMySQL(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return &backend{statements: s, owners: s, users: s, health: s, closer: s}, nil
	case config.DriverMemory:
		mem := ledgerstore.NewMemory()
		return &backend{
			statements: mem,
			owners:     mem,
			users:      users.NewMemory(),
			closer:     nopCloser{},
		}, nil
	default:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &backend{statements: s, owners: s, users: s, health: s, closer: s}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
