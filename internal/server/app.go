// Package server initializes and runs the main application server.
// It opens the database, applies migrations, wires services, handles
// graceful shutdown, and starts the HTTP API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/passwords-you-take-anywhere/server/internal/logging"
	"github.com/passwords-you-take-anywhere/server/internal/server/config"
	"github.com/passwords-you-take-anywhere/server/internal/server/httpapi"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/repomanager"
	"github.com/passwords-you-take-anywhere/server/internal/server/seed"
	"github.com/passwords-you-take-anywhere/server/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
	syncService *services.SyncService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	if c.SeedDemoData {
		seeded, err := seed.IfEmpty(ctx, db, rm)
		if err != nil {
			return nil, fmt.Errorf("seed error: %w", err)
		}
		if seeded {
			logger.Info(ctx, "seeded demo data")
		}
	}

	us := services.NewUserService(db, rm, c)
	ss := services.NewSyncService(db, rm)

	return &App{config: c, logger: logger, db: db, userService: us, syncService: ss}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.Addr, app.logger, app.userService, app.syncService, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
